package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexushub/controlplane/internal/common/cnst"

	"gorm.io/gorm"
)

// InitMasterTenant seeds the root tenant and the federation controls row if
// they do not exist yet. Called once at startup.
func InitMasterTenant(ctx context.Context, db Database) error {
	_, err := db.GetTenantByID(ctx, cnst.MasterTenantID)
	if err == nil {
		// ensure the controls singleton exists too
		_, err = db.GetSystemControls(ctx)
		return err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	master := &Tenant{
		ID:          cnst.MasterTenantID,
		Name:        "Master Hub",
		Slug:        "master-hub",
		Description: "Root of the tenant hierarchy",
		Path:        fmt.Sprintf("/%d/", cnst.MasterTenantID),
		Depth:       0,
		IsActive:    true,
		IsHub:       true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.CreateTenant(ctx, master); err != nil {
		return err
	}

	_, err = db.GetSystemControls(ctx)
	return err
}
