package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
	"github.com/vibast-solutions/ms-go-memberships/app/types"
)

func UpgradeToResponse(item *entity.UpgradeRecord, account *entity.Account) *types.Upgrade {
	if item == nil {
		return nil
	}

	return &types.Upgrade{
		RecordID:          item.RecordID,
		ExternalSessionID: derefString(item.ExternalSessionID),
		Email:             item.Identity.Email,
		TargetTier:        types.TierName(item.TargetTier),
		AmountCents:       item.AmountCents,
		Currency:          item.Currency,
		Status:            types.StatusName(item.Status),
		FailureReason:     derefString(item.FailureReason),
		RedirectURL:       derefString(item.RedirectURL),
		Account:           AccountToSummary(account),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		ConfirmedAt:       formatTimePtr(item.ConfirmedAt),
		AppliedAt:         formatTimePtr(item.AppliedAt),
	}
}

func AccountToSummary(item *entity.Account) *types.AccountSummary {
	if item == nil {
		return nil
	}

	status := "inactive"
	if item.MembershipStatus == entity.MembershipActive {
		status = "active"
	}

	return &types.AccountSummary{
		ID:                    item.ID,
		Email:                 item.Email,
		FirstName:             item.FirstName,
		LastName:              item.LastName,
		MembershipTier:        types.TierName(item.MembershipTier),
		MembershipStatus:      status,
		MembershipActivatedAt: formatTimePtr(item.MembershipActivatedAt),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTimePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
