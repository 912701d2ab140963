package customers

import (
	"fmt"
	"strings"

	"github.com/tassili-erp/tassili-erp/internal/masterdata/shared"
)

func (s *Service) validate(c Customer) error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("%w: customer code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", shared.ErrValidation)
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: invalid email", shared.ErrValidation)
	}
	return nil
}
