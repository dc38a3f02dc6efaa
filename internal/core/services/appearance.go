package services

import (
	"context"
	"fmt"

	"github.com/ludex-app/ludex/internal/attachio"
	"github.com/ludex-app/ludex/internal/core/domain"
)

// Appearance stores the UI background images. Each theme's image is an
// attachment on the shared media document of the configuration database,
// so it replicates with the rest of the settings.
type Appearance struct {
	catalog *Catalog
}

// NewAppearance builds the appearance service.
func NewAppearance(catalog *Catalog) *Appearance {
	return &Appearance{catalog: catalog}
}

const mediaDocID = "media"

func backgroundName(theme string) string {
	return "background-" + theme
}

// SetBackground stores the background image for a theme, accepting raw
// bytes or a file path.
func (a *Appearance) SetBackground(ctx context.Context, theme string, input any) error {
	if theme == "" {
		return fmt.Errorf("theme must not be empty")
	}
	data, err := attachio.Bytes(input)
	if err != nil {
		return err
	}
	return a.catalog.PutAttachment(ctx, domain.DBConfig, mediaDocID, backgroundName(theme), data, "")
}

// GetBackground returns the background image of a theme, or
// domain.ErrNotFound when none is set.
func (a *Appearance) GetBackground(ctx context.Context, theme string) (*domain.Attachment, error) {
	return a.catalog.GetAttachment(ctx, domain.DBConfig, mediaDocID, backgroundName(theme))
}

// RemoveBackground clears the background image of a theme.
func (a *Appearance) RemoveBackground(ctx context.Context, theme string) error {
	return a.catalog.RemoveAttachment(ctx, domain.DBConfig, mediaDocID, backgroundName(theme))
}
