package payment

import (
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// DefaultIframeBaseURL is where checkout tokens are redeemed.
const DefaultIframeBaseURL = "https://www.paytr.com/odeme/guvenli/"

var validate = validator.New(validator.WithRequiredStructEnabled())

// MerchantConfig holds the static PayTR merchant credentials and checkout options.
type MerchantConfig struct {
	MerchantID      string `validate:"required"`
	MerchantKey     string `validate:"required"`
	MerchantSalt    string `validate:"required"`
	TokenEndpoint   string `validate:"required,url"`
	NoInstallment   bool
	MaxInstallment  int `validate:"gte=0,lte=12"`
	TestMode        bool
	DebugOn         bool
	TimeoutLimit    int `validate:"gte=0"`
	MerchantOkURL   string `validate:"omitempty,url"`
	MerchantFailURL string `validate:"omitempty,url"`
	IframeBaseURL   string `validate:"omitempty,url"`
}

// Validate reports missing or malformed merchant settings.
func (c MerchantConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid paytr merchant config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid paytr merchant config: %w", err)
	}
	return nil
}

func (c MerchantConfig) iframeURL(token string) string {
	base := strings.TrimSpace(c.IframeBaseURL)
	if base == "" {
		base = DefaultIframeBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + token
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
