package service

import (
	"net/http"

	"github.com/dustin/go-humanize"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"go.uber.org/zap"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/curtin"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/datastore"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metrics"
	v1 "github.com/provision-stack/provision-api/cmd/provision-api/internal/service/v1"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/utils"
	"github.com/provision-stack/provision-api/pkg/httperrors"
)

type machineResource struct {
	webResource
}

// NewMachine returns a webservice for machine specific endpoints.
func NewMachine(log *zap.SugaredLogger, ds *datastore.RethinkStore) *restful.WebService {
	r := machineResource{
		webResource: webResource{
			log: log,
			ds:  ds,
		},
	}
	return r.webService()
}

func (r machineResource) webService() *restful.WebService {
	ws := new(restful.WebService)
	ws.
		Path(BasePath + "v1/machine").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	tags := []string{"machine"}

	ws.Route(ws.GET("/{id}").
		To(r.findMachine).
		Operation("findMachine").
		Doc("get machine by id").
		Param(ws.PathParameter("id", "identifier of the machine").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.MachineResponse{}).
		Returns(http.StatusOK, "OK", v1.MachineResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/").
		To(r.listMachines).
		Operation("listMachines").
		Doc("get all machines").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]v1.MachineResponse{}).
		Returns(http.StatusOK, "OK", []v1.MachineResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.POST("/find").
		To(r.findMachines).
		Operation("findMachines").
		Doc("get all machines that match given properties").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(datastore.MachineSearchQuery{}).
		Writes([]v1.MachineResponse{}).
		Returns(http.StatusOK, "OK", []v1.MachineResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{id}/storage-config").
		To(r.storageConfig).
		Operation("machineStorageConfig").
		Doc("compile the storage configuration for the machine's installer").
		Param(ws.PathParameter("id", "identifier of the machine").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.MachineStorageConfigResponse{}).
		Returns(http.StatusOK, "OK", v1.MachineStorageConfigResponse{}).
		Returns(http.StatusUnprocessableEntity, "UnprocessableEntity", httperrors.HTTPErrorResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	return ws
}

func (r machineResource) findMachine(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")

	m, err := r.ds.FindMachineByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewMachineResponse(m))
}

func (r machineResource) listMachines(request *restful.Request, response *restful.Response) {
	ms, err := r.ds.ListMachines()
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	result := []*v1.MachineResponse{}
	for i := range ms {
		result = append(result, v1.NewMachineResponse(&ms[i]))
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, result)
}

func (r machineResource) findMachines(request *restful.Request, response *restful.Response) {
	var requestPayload datastore.MachineSearchQuery
	err := request.ReadEntity(&requestPayload)
	if err != nil {
		r.sendError(response, utils.CurrentFuncName(), httperrors.BadRequest(err))
		return
	}

	var ms metal.Machines
	err = r.ds.SearchMachines(&requestPayload, &ms)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	result := []*v1.MachineResponse{}
	for i := range ms {
		result = append(result, v1.NewMachineResponse(&ms[i]))
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, result)
}

func (r machineResource) storageConfig(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")

	m, err := r.ds.FindMachineByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	config, err := curtin.StorageConfig(m)
	if err != nil {
		if metal.IsMalformedGraph(err) {
			metrics.CountStorageCompilation("malformed-graph")
		} else {
			metrics.CountStorageCompilation("error")
		}
		r.checkError(response, utils.CurrentFuncName(), err)
		return
	}
	metrics.CountStorageCompilation("ok")

	if disk := m.Storage.BootDisk(); disk != nil {
		r.log.Debugw("compiled storage configuration", "machine", m.ID, "bootdisk", disk.Name, "size", humanize.IBytes(disk.Size))
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewMachineStorageConfigResponse(m, config))
}
