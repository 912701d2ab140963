package warehouses

import (
	"fmt"
	"strings"

	"github.com/tassili-erp/tassili-erp/internal/masterdata/shared"
)

func (s *Service) validate(w Warehouse) error {
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", shared.ErrValidation)
	}
	return nil
}
