package items

import (
	"fmt"
	"strings"

	"github.com/tassili-erp/tassili-erp/internal/masterdata/shared"
)

func (s *Service) validate(item Item) error {
	if strings.TrimSpace(item.Code) == "" {
		return fmt.Errorf("%w: item code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: item name is required", shared.ErrValidation)
	}
	if strings.TrimSpace(item.UOM) == "" {
		return fmt.Errorf("%w: unit of measure is required", shared.ErrValidation)
	}
	if item.ReorderLevel < 0 || item.MinimumLevel < 0 {
		return fmt.Errorf("%w: stock levels must be >= 0", shared.ErrValidation)
	}
	if item.ReorderLevel < item.MinimumLevel {
		return fmt.Errorf("%w: reorder level must be >= minimum level", shared.ErrValidation)
	}
	return nil
}
