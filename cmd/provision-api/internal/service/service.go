package service

import (
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/datastore"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
	"github.com/provision-stack/provision-api/pkg/httperrors"
)

// BasePath is the url base path for all web services.
const BasePath = "/"

type webResource struct {
	log *zap.SugaredLogger
	ds  *datastore.RethinkStore
}

func (w webResource) sendError(response *restful.Response, caller string, httperr *httperrors.HTTPErrorResponse) {
	w.log.Errorw("service error", "operation", caller, "status", httperr.StatusCode, "error", httperr.Message)
	err := response.WriteHeaderAndEntity(httperr.StatusCode, httperr)
	if err != nil {
		w.log.Errorw("failed to send error response", "error", err)
	}
}

// checkError writes the response matching the error class and reports whether
// an error was handled.
func (w webResource) checkError(response *restful.Response, caller string, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case metal.IsNotFound(err):
		w.sendError(response, caller, httperrors.NotFound(err))
	case metal.IsConflict(err):
		w.sendError(response, caller, httperrors.Conflict(err))
	case metal.IsMalformedGraph(err):
		w.sendError(response, caller, httperrors.UnprocessableEntity(err))
	default:
		w.sendError(response, caller, httperrors.InternalServerError(err))
	}
	return true
}
