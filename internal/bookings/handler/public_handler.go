package handler

import (
	"net/http"
	"strings"
	"time"

	"pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/bookings/service"
	"pipeline_backend/internal/bookings/transport"
	"pipeline_backend/internal/opportunities/domain"
	"pipeline_backend/platform/config"
	"pipeline_backend/platform/httpkit"
	"pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// PublicHandler serves the customer-facing booking link endpoints. The link
// token is the only credential; there is no account behind it.
type PublicHandler struct {
	svc        *service.Service
	val        *validator.Validator
	appBaseURL string
}

func NewPublicHandler(svc *service.Service, val *validator.Validator, cfg config.PublicBookingConfig) *PublicHandler {
	return &PublicHandler{
		svc:        svc,
		val:        val,
		appBaseURL: strings.TrimRight(cfg.GetAppBaseURL(), "/"),
	}
}

func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:token", h.GetLink)
	rg.GET("/:token/qr", h.GetQRCode)
	rg.POST("/:token/book", h.Book)
}

// GetLink describes the booking link: who it is for and which appointment
// types can currently be booked.
func (h *PublicHandler) GetLink(c *gin.Context) {
	opp, bookings, err := h.svc.ResolvePublicLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	var upcoming []transport.BookingResponse
	now := time.Now()
	for i := range bookings {
		b := &bookings[i]
		if b.Outcome == repository.OutcomePending && b.EndTime.After(now) {
			upcoming = append(upcoming, transport.NewBookingResponse(b))
		}
	}

	httpkit.OK(c, transport.PublicLinkResponse{
		ContactName:  opp.ContactName,
		Stage:        string(opp.Stage),
		BookingTypes: bookableTypes(opp.Stage),
		Upcoming:     upcoming,
	})
}

// GetQRCode renders the booking link as a QR code PNG, for printing on
// leave-behind material.
func (h *PublicHandler) GetQRCode(c *gin.Context) {
	token := c.Param("token")
	if _, _, err := h.svc.ResolvePublicLink(c.Request.Context(), token); err != nil {
		httpkit.HandleError(c, err)
		return
	}

	png, err := qrcode.Encode(h.appBaseURL+"/book/"+token, qrcode.Medium, qrImageSize)
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to render QR code", nil)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// Book creates a booking for the opportunity behind the link token.
func (h *PublicHandler) Book(c *gin.Context) {
	var req transport.PublicBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateFromPublicToken(c.Request.Context(), c.Param("token"), service.CreateParams{
		Type:            req.Type,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.NewCreateBookingResponse(result))
}

// bookableTypes returns the appointment types a customer can book for the
// given pipeline stage. Terminal opportunities get nothing.
func bookableTypes(stage domain.Stage) []string {
	switch stage {
	case domain.StageNewEnquiry, domain.StageCall1Scheduled:
		return []string{"initial-consultation"}
	case domain.StageQualified, domain.StageCall2Scheduled:
		return []string{"design-call"}
	case domain.StageProposalAgreed, domain.StageAwaitingDeposit, domain.StageDepositPaid, domain.StageOnboardingScheduled:
		return []string{"onboarding-visit"}
	default:
		return []string{}
	}
}
