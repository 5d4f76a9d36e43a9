package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
	"github.com/vibast-solutions/ms-go-memberships/app/factory"
	"github.com/vibast-solutions/ms-go-memberships/app/mapper"
	"github.com/vibast-solutions/ms-go-memberships/app/service"
	"github.com/vibast-solutions/ms-go-memberships/app/token"
	"github.com/vibast-solutions/ms-go-memberships/app/types"
)

type UpgradeController struct {
	upgradeService *service.UpgradeService
	tokens         *token.Manager
	logger         logrus.FieldLogger
}

func NewUpgradeController(upgradeService *service.UpgradeService, tokens *token.Manager) *UpgradeController {
	return &UpgradeController{
		upgradeService: upgradeService,
		tokens:         tokens,
		logger:         factory.NewModuleLogger("memberships-controller"),
	}
}

func (c *UpgradeController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *UpgradeController) InitiateUpgrade(ctx echo.Context) error {
	claim, err := c.sessionClaim(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusUnauthorized, "valid session token is required")
	}

	req, err := types.NewInitiateUpgradeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	record, err := c.upgradeService.InitiateUpgrade(ctx.Request().Context(), claim, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTier), errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInvalidIdentity):
			return c.writeError(ctx, http.StatusUnauthorized, err.Error())
		case errors.Is(err, service.ErrCheckoutInitiationFailed):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Checkout initiation failed")
			return c.writeError(ctx, http.StatusBadGateway, "payment provider is unavailable")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Initiate upgrade failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	resp := &types.InitiateUpgradeResponse{RecordID: record.RecordID}
	if record.ExternalSessionID != nil {
		resp.ExternalSessionID = *record.ExternalSessionID
	}
	if record.RedirectURL != nil {
		resp.RedirectURL = *record.RedirectURL
	}

	return ctx.JSON(http.StatusCreated, resp)
}

// ResolveConfirmation is the client-return trigger: the success redirect lands
// the browser here with whichever identifier it has. Not-yet-paid and
// failed-materialization outcomes still return the record envelope so the
// client sees the authoritative state.
func (c *UpgradeController) ResolveConfirmation(ctx echo.Context) error {
	req, err := types.NewResolveConfirmationRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	record, err := c.upgradeService.ResolveConfirmation(ctx.Request().Context(), req.RecordID, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRecordNotFound):
			return c.writeError(ctx, http.StatusNotFound, "upgrade record not found")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotYetPaid), errors.Is(err, service.ErrMaterializationFailed):
			if errors.Is(err, service.ErrMaterializationFailed) {
				factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Upgrade materialization failed")
			}
			if record != nil {
				return ctx.JSON(http.StatusOK, c.envelope(ctx, record))
			}
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Resolve confirmation failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, c.envelope(ctx, record))
}

func (c *UpgradeController) GetStatus(ctx echo.Context) error {
	req, err := types.NewGetStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	record, account, err := c.upgradeService.GetStatus(ctx.Request().Context(), req.RecordID, req.SessionID)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "upgrade record not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get upgrade status failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.UpgradeEnvelopeResponse{Upgrade: mapper.UpgradeToResponse(record, account)})
}

// HandleProviderCallback acknowledges with 200 whenever the delivery itself
// was valid, even if acting on it failed internally, because provider retries
// cannot fix our side. 400 is reserved for invalid signatures and payloads.
func (c *UpgradeController) HandleProviderCallback(ctx echo.Context) error {
	req, err := types.NewHandleProviderCallbackRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	_, err = c.upgradeService.HandleProviderCallback(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrCallbackRejected):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrNotYetPaid):
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Provider callback processing failed")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Provider callback processed"})
}

func (c *UpgradeController) envelope(ctx echo.Context, record *entity.UpgradeRecord) *types.UpgradeEnvelopeResponse {
	var account *entity.Account
	if record.AccountID != nil {
		// Best effort enrichment; the envelope is valid without it.
		_, account, _ = c.upgradeService.GetStatus(ctx.Request().Context(), record.RecordID, "")
	}
	return &types.UpgradeEnvelopeResponse{Upgrade: mapper.UpgradeToResponse(record, account)}
}

func (c *UpgradeController) sessionClaim(ctx echo.Context) (entity.IdentityClaim, error) {
	header := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderAuthorization))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return entity.IdentityClaim{}, token.ErrInvalidToken
	}
	raw := strings.TrimSpace(header[len("bearer "):])
	return c.tokens.Parse(raw)
}

func (c *UpgradeController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
