package handler

import (
	"errors"
	"strconv"
	"strings"

	"courierledger/internal/auth"
	"courierledger/internal/config"
	"courierledger/internal/infrastructure/cache"
	"courierledger/internal/infrastructure/lock"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/model"
	"courierledger/internal/service"
	"courierledger/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies 路由需要的外部资源
type Dependencies struct {
	DB            *gorm.DB
	Locker        lock.Locker
	Authenticator auth.Authenticator
	Config        *config.Config
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	catalog   *service.CatalogService
	resolver  *service.ResolverService
	rateAdmin *service.RateAdminService
	audits    *service.AuditService
	invoices  *service.InvoiceService
	ledger    *service.LedgerService
}

// NewHandler 创建处理器实例
func NewHandler(deps Dependencies) *Handler {
	cfg := deps.Config
	slabCache := cache.NewLookupCache[string, []model.WeightSlab](cfg.Cache.Size, cfg.Cache.TTL())
	regionCache := cache.NewLookupCache[int64, *int64](cfg.Cache.Size, cfg.Cache.TTL())

	catalog := service.NewCatalogService(deps.DB, slabCache)
	parties := service.NewDBPartyDirectory(deps.DB, regionCache)
	resolver := service.NewResolverService(deps.DB, catalog, parties, cfg.Business.DefaultGst())

	return &Handler{
		catalog:   catalog,
		resolver:  resolver,
		rateAdmin: service.NewRateAdminService(deps.DB, cfg),
		audits:    service.NewAuditService(deps.DB, cfg.Business.AuditPageSizeMax),
		invoices:  service.NewInvoiceService(deps.DB, resolver),
		ledger:    service.NewLedgerService(deps.DB, deps.Locker, cfg),
	}
}

// Ledger 对账任务复用同一个账本服务
func (h *Handler) Ledger() *service.LedgerService {
	return h.ledger
}

func currentUser(c *gin.Context) *auth.User {
	user, _ := auth.FromContext(c.Request.Context())
	return user
}

// fail 按业务错误分类映射 HTTP 状态码
func fail(c *gin.Context, err error) {
	msg := err.Error()
	var e *service.Error
	if errors.As(err, &e) {
		msg = e.Message
	}

	switch service.KindOf(err) {
	case service.KindValidation:
		response.ParamError(c, msg)
	case service.KindNotFound:
		response.NotFound(c, msg)
	case service.KindForbidden:
		response.Forbidden(c, msg)
	case service.KindBusy:
		response.Conflict(c, msg)
	case service.KindIntegrity:
		logging.LogError("handler", c.FullPath(), "integrity", nil, err)
		response.IntegrityError(c, msg)
	default:
		logging.LogError("handler", c.FullPath(), "internal", nil, err)
		response.ServerError(c, "服务器内部错误")
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// queryInt64 读取整数查询参数；缺省返回 nil
func queryInt64(c *gin.Context, name string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return nil, false
	}
	return &v, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// ============================================================
// 费率解析
// ============================================================

// ResolveRate 解析一票货的费率
// GET /api/v1/rates/resolve?partyId=&shipmentType=&mode=&serviceType=&distanceSlab=&weightGrams=
func (h *Handler) ResolveRate(c *gin.Context) {
	in := &service.ResolveInput{ShipmentType: strings.TrimSpace(c.Query("shipmentType"))}
	var partyID, modeID, serviceTypeID, distanceSlabID *int64

	params := []struct {
		name string
		dst  **int64
	}{
		{"partyId", &partyID},
		{"mode", &modeID},
		{"serviceType", &serviceTypeID},
		{"distanceSlab", &distanceSlabID},
		{"weightGrams", &in.WeightGrams},
		{"weightSlabId", &in.WeightSlabID},
		{"regionId", &in.RegionID},
	}
	for _, p := range params {
		v, ok := queryInt64(c, p.name)
		if !ok {
			return
		}
		*p.dst = v
	}
	in.PartyID = deref(partyID)
	in.ModeID = deref(modeID)
	in.ServiceTypeID = deref(serviceTypeID)
	in.DistanceSlabID = deref(distanceSlabID)

	rate, unresolved, err := h.resolver.Resolve(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	if unresolved != nil {
		response.RateNotConfigured(c, string(unresolved.Reason), unresolved.Message)
		return
	}
	response.Success(c, rate)
}

// ============================================================
// 来款与分配
// ============================================================

// RecordPayment 登记来款
// POST /api/v1/party-payments
func (h *Handler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.ledger.RecordPayment(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, payment)
}

// GetPayment GET /api/v1/party-payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payment, err := h.ledger.GetPayment(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, payment)
}

// Allocate 来款分配
// POST /api/v1/payment-allocations
//
// 同一 request_id 重放返回 200 和原分配结果，首次成功返回 201。
func (h *Handler) Allocate(c *gin.Context) {
	var req service.AllocateRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.ledger.Allocate(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	if result.Replayed {
		response.Success(c, result)
		return
	}
	response.Created(c, result)
}

// ReverseAllocation 冲销一条分配
// DELETE /api/v1/payment-allocations/:id
func (h *Handler) ReverseAllocation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.ledger.Reverse(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ListInvoiceAllocations GET /api/v1/invoices/:id/allocations
func (h *Handler) ListInvoiceAllocations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.ledger.ListInvoiceAllocations(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// 发票
// ============================================================

// CreateInvoice POST /api/v1/invoices
func (h *Handler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoices.CreateInvoice(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, invoice)
}

// GetInvoice GET /api/v1/invoices/:id
func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, invoice)
}

// ============================================================
// 费率审计
// ============================================================

// ListRateAudits GET /api/v1/rate-audits?partyRateSlabId=&limit=&offset=
func (h *Handler) ListRateAudits(c *gin.Context) {
	slabID, ok := queryInt64(c, "partyRateSlabId")
	if !ok {
		return
	}
	limit, ok := queryInt64(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt64(c, "offset")
	if !ok {
		return
	}

	page, err := h.audits.ListAudits(c.Request.Context(), slabID, int(deref(limit)), int(deref(offset)))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, page)
}

// ============================================================
// 客户费率与默认费率
// ============================================================

// CreatePartyRateSlab POST /api/v1/party-rate-slabs
func (h *Handler) CreatePartyRateSlab(c *gin.Context) {
	var req service.CreatePartyRateSlabRequest
	if !bindJSON(c, &req) {
		return
	}
	row, err := h.rateAdmin.CreatePartyRateSlab(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, row)
}

// UpdatePartyRateSlab PUT /api/v1/party-rate-slabs/:id
func (h *Handler) UpdatePartyRateSlab(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdatePartyRateSlabRequest
	if !bindJSON(c, &req) {
		return
	}
	row, err := h.rateAdmin.UpdatePartyRateSlab(c.Request.Context(), currentUser(c), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, row)
}

// DeactivatePartyRateSlab POST /api/v1/party-rate-slabs/:id/deactivate
func (h *Handler) DeactivatePartyRateSlab(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	row, err := h.rateAdmin.DeactivatePartyRateSlab(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, row)
}

// ListPartyRateSlabs GET /api/v1/party-rate-slabs?partyId=
func (h *Handler) ListPartyRateSlabs(c *gin.Context) {
	partyID, ok := queryInt64(c, "partyId")
	if !ok {
		return
	}
	rows, err := h.rateAdmin.ListPartyRateSlabs(c.Request.Context(), deref(partyID))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rows)
}

// UpsertRateDefault PUT /api/v1/rate-defaults
func (h *Handler) UpsertRateDefault(c *gin.Context) {
	var req service.UpsertRateDefaultRequest
	if !bindJSON(c, &req) {
		return
	}
	row, err := h.rateAdmin.UpsertRateDefault(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, row)
}

// ListRateDefaults GET /api/v1/rate-defaults?packageType=
func (h *Handler) ListRateDefaults(c *gin.Context) {
	rows, err := h.rateAdmin.ListRateDefaults(c.Request.Context(), c.Query("packageType"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rows)
}

// ============================================================
// 基础数据
// ============================================================

// ListWeightSlabs GET /api/v1/weight-slabs
func (h *Handler) ListWeightSlabs(c *gin.Context) {
	slabs, err := h.catalog.ListWeightSlabs(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, slabs)
}

// FindWeightSlab GET /api/v1/weight-slabs/find?weightGrams=
func (h *Handler) FindWeightSlab(c *gin.Context) {
	weight, ok := queryInt64(c, "weightGrams")
	if !ok {
		return
	}
	if weight == nil {
		response.ParamError(c, "weightGrams 必填")
		return
	}
	slab, found, err := h.catalog.FindWeightSlab(c.Request.Context(), *weight)
	if err != nil {
		fail(c, err)
		return
	}
	if !found {
		response.RateNotConfigured(c, string(service.ReasonNoWeightSlab), "没有对应的重量段")
		return
	}
	response.Success(c, slab)
}

// CreateWeightSlab POST /api/v1/weight-slabs
func (h *Handler) CreateWeightSlab(c *gin.Context) {
	var req service.CreateWeightSlabRequest
	if !bindJSON(c, &req) {
		return
	}
	slab, err := h.catalog.CreateWeightSlab(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, slab)
}

// DeactivateWeightSlab POST /api/v1/weight-slabs/:id/deactivate
func (h *Handler) DeactivateWeightSlab(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeactivateWeightSlab(c.Request.Context(), currentUser(c), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "active": false})
}

// UpsertServiceType PUT /api/v1/service-types
func (h *Handler) UpsertServiceType(c *gin.Context) {
	var req service.ReferenceInput
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.catalog.UpsertServiceType(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

// UpsertMode PUT /api/v1/modes
func (h *Handler) UpsertMode(c *gin.Context) {
	var req service.ReferenceInput
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.catalog.UpsertMode(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

// UpsertDistanceSlab PUT /api/v1/distance-slabs
func (h *Handler) UpsertDistanceSlab(c *gin.Context) {
	var req service.ReferenceInput
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.catalog.UpsertDistanceSlab(c.Request.Context(), currentUser(c), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

// ListServiceTypes GET /api/v1/service-types
func (h *Handler) ListServiceTypes(c *gin.Context) {
	out, err := h.catalog.ListServiceTypes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

func (h *Handler) ListModes(c *gin.Context) {
	out, err := h.catalog.ListModes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}

func (h *Handler) ListDistanceSlabs(c *gin.Context) {
	out, err := h.catalog.ListDistanceSlabs(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, out)
}
