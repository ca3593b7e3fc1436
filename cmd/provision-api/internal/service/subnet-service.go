package service

import (
	"net/http"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	restful "github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/provision-stack/provision-api/cmd/provision-api/internal/datastore"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/metal"
	v1 "github.com/provision-stack/provision-api/cmd/provision-api/internal/service/v1"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/utilization"
	"github.com/provision-stack/provision-api/cmd/provision-api/internal/utils"
	"github.com/provision-stack/provision-api/pkg/httperrors"
)

type subnetResource struct {
	webResource
	util *utilization.Repository
}

// NewSubnet returns a webservice for subnet specific endpoints.
func NewSubnet(log *zap.SugaredLogger, ds *datastore.RethinkStore, util *utilization.Repository) *restful.WebService {
	r := subnetResource{
		webResource: webResource{
			log: log,
			ds:  ds,
		},
		util: util,
	}
	return r.webService()
}

func (r subnetResource) webService() *restful.WebService {
	ws := new(restful.WebService)
	ws.
		Path(BasePath + "v1/subnet").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	tags := []string{"subnet"}

	ws.Route(ws.GET("/{id}").
		To(r.findSubnet).
		Operation("findSubnet").
		Doc("get subnet by id").
		Param(ws.PathParameter("id", "identifier of the subnet").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.SubnetResponse{}).
		Returns(http.StatusOK, "OK", v1.SubnetResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/").
		To(r.listSubnets).
		Operation("listSubnets").
		Doc("get all subnets").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes([]v1.SubnetResponse{}).
		Returns(http.StatusOK, "OK", []v1.SubnetResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.POST("/find").
		To(r.findSubnets).
		Operation("findSubnets").
		Doc("get all subnets that match given properties").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(datastore.SubnetSearchQuery{}).
		Writes([]v1.SubnetResponse{}).
		Returns(http.StatusOK, "OK", []v1.SubnetResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.PUT("/").
		To(r.createSubnet).
		Operation("createSubnet").
		Doc("create a subnet. if the given ID already exists a conflict is returned").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(v1.SubnetCreateRequest{}).
		Returns(http.StatusCreated, "Created", v1.SubnetResponse{}).
		Returns(http.StatusConflict, "Conflict", httperrors.HTTPErrorResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.POST("/").
		To(r.updateSubnet).
		Operation("updateSubnet").
		Doc("updates a subnet. if the subnet was changed since this one was read, a conflict is returned").
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Reads(v1.SubnetUpdateRequest{}).
		Returns(http.StatusOK, "OK", v1.SubnetResponse{}).
		Returns(http.StatusConflict, "Conflict", httperrors.HTTPErrorResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.DELETE("/{id}").
		To(r.deleteSubnet).
		Operation("deleteSubnet").
		Doc("deletes a subnet and returns the deleted entity").
		Param(ws.PathParameter("id", "identifier of the subnet").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.SubnetResponse{}).
		Returns(http.StatusOK, "OK", v1.SubnetResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{id}/utilization").
		To(r.subnetUtilization).
		Operation("subnetUtilization").
		Doc("get the purpose tagged utilization statistics of the subnet").
		Param(ws.PathParameter("id", "identifier of the subnet").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.SubnetUtilizationResponse{}).
		Returns(http.StatusOK, "OK", v1.SubnetUtilizationResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{id}/free").
		To(r.subnetFree).
		Operation("subnetFree").
		Doc("get the ranges from which an address can be allocated").
		Param(ws.PathParameter("id", "identifier of the subnet").DataType("string")).
		Param(ws.QueryParameter("exclude-addresses", "addresses to treat as occupied").DataType("string").AllowMultiple(true)).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.SubnetAvailableResponse{}).
		Returns(http.StatusOK, "OK", v1.SubnetAvailableResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{id}/available-reserved").
		To(r.subnetAvailableReserved).
		Operation("subnetAvailableReserved").
		Doc("get the ranges where a reserved range can be placed").
		Param(ws.PathParameter("id", "identifier of the subnet").DataType("string")).
		Param(ws.QueryParameter("exclude-range", "an existing range id to leave out, for resizing").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.SubnetAvailableResponse{}).
		Returns(http.StatusOK, "OK", v1.SubnetAvailableResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	ws.Route(ws.GET("/{id}/available-dynamic").
		To(r.subnetAvailableDynamic).
		Operation("subnetAvailableDynamic").
		Doc("get the ranges where a dynamic range can be placed").
		Param(ws.PathParameter("id", "identifier of the subnet").DataType("string")).
		Param(ws.QueryParameter("exclude-range", "an existing range id to leave out, for resizing").DataType("string")).
		Metadata(restfulspec.KeyOpenAPITags, tags).
		Writes(v1.SubnetAvailableResponse{}).
		Returns(http.StatusOK, "OK", v1.SubnetAvailableResponse{}).
		DefaultReturns("Error", httperrors.HTTPErrorResponse{}))

	return ws
}

func (r subnetResource) findSubnet(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")

	s, err := r.ds.FindSubnetByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetResponse(s))
}

func (r subnetResource) listSubnets(request *restful.Request, response *restful.Response) {
	ss, err := r.ds.ListSubnets()
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	result := []*v1.SubnetResponse{}
	for i := range ss {
		result = append(result, v1.NewSubnetResponse(&ss[i]))
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, result)
}

func (r subnetResource) findSubnets(request *restful.Request, response *restful.Response) {
	var requestPayload datastore.SubnetSearchQuery
	err := request.ReadEntity(&requestPayload)
	if err != nil {
		r.sendError(response, utils.CurrentFuncName(), httperrors.BadRequest(err))
		return
	}

	var ss metal.Subnets
	err = r.ds.SearchSubnets(&requestPayload, &ss)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	result := []*v1.SubnetResponse{}
	for i := range ss {
		result = append(result, v1.NewSubnetResponse(&ss[i]))
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, result)
}

func (r subnetResource) createSubnet(request *restful.Request, response *restful.Response) {
	var requestPayload v1.SubnetCreateRequest
	err := request.ReadEntity(&requestPayload)
	if err != nil {
		r.sendError(response, utils.CurrentFuncName(), httperrors.BadRequest(err))
		return
	}

	if _, err := requestPayload.Prefix(); err != nil {
		r.sendError(response, utils.CurrentFuncName(), httperrors.UnprocessableEntity(err))
		return
	}

	s := newSubnetFromRequest(requestPayload.Common, requestPayload.SubnetBase)
	if s.ID == "" {
		s.ID = uuid.New().String()
	} else {
		existing, _ := r.ds.FindSubnetByID(s.ID)
		if existing != nil {
			r.sendError(response, utils.CurrentFuncName(), httperrors.Conflict(metal.Conflict("subnet with id %q already exists", s.ID)))
			return
		}
	}

	err = r.ds.CreateSubnet(s)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusCreated, v1.NewSubnetResponse(s))
}

func (r subnetResource) updateSubnet(request *restful.Request, response *restful.Response) {
	var requestPayload v1.SubnetUpdateRequest
	err := request.ReadEntity(&requestPayload)
	if err != nil {
		r.sendError(response, utils.CurrentFuncName(), httperrors.BadRequest(err))
		return
	}

	old, err := r.ds.FindSubnetByID(requestPayload.ID)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	newSubnet := *old
	if requestPayload.Name != nil {
		newSubnet.Name = *requestPayload.Name
	}
	if requestPayload.Description != nil {
		newSubnet.Description = *requestPayload.Description
	}
	newSubnet.GatewayIP = requestPayload.GatewayIP
	newSubnet.DNSServers = requestPayload.DNSServers
	newSubnet.VLAN = requestPayload.VLAN
	newSubnet.Managed = requestPayload.Managed

	err = r.ds.UpdateSubnet(old, &newSubnet)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetResponse(&newSubnet))
}

func (r subnetResource) deleteSubnet(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")

	s, err := r.ds.FindSubnetByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	err = r.ds.DeleteSubnet(s)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetResponse(s))
}

func (r subnetResource) subnetUtilization(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")

	s, err := r.ds.FindSubnetByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	ranges, err := r.util.UtilizationMap(s)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetUtilizationResponse(s, ranges))
}

func (r subnetResource) subnetFree(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")
	excludes := request.QueryParameters("exclude-addresses")

	s, err := r.ds.FindSubnetByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	free, err := r.util.AvailableForAllocation(s, excludes)
	if err != nil {
		r.sendError(response, utils.CurrentFuncName(), httperrors.UnprocessableEntity(err))
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetAvailableResponse(s, free))
}

func (r subnetResource) subnetAvailableReserved(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")
	excludeRangeID := request.QueryParameter("exclude-range")

	s, err := r.ds.FindSubnetByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	available, err := r.util.AvailableForReservedRange(s, excludeRangeID)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetAvailableResponse(s, available))
}

func (r subnetResource) subnetAvailableDynamic(request *restful.Request, response *restful.Response) {
	id := request.PathParameter("id")
	excludeRangeID := request.QueryParameter("exclude-range")

	s, err := r.ds.FindSubnetByID(id)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	available, err := r.util.AvailableForDynamicRange(s, excludeRangeID)
	if r.checkError(response, utils.CurrentFuncName(), err) {
		return
	}

	_ = response.WriteHeaderAndEntity(http.StatusOK, v1.NewSubnetAvailableResponse(s, available))
}

func newSubnetFromRequest(c v1.Common, b v1.SubnetBase) *metal.Subnet {
	s := &metal.Subnet{
		Base: metal.Base{
			ID: c.ID,
		},
		CIDR:       b.CIDR,
		GatewayIP:  b.GatewayIP,
		DNSServers: b.DNSServers,
		VLAN:       b.VLAN,
		Managed:    b.Managed,
	}
	if c.Name != nil {
		s.Name = *c.Name
	}
	if c.Description != nil {
		s.Description = *c.Description
	}
	return s
}
