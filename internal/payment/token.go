package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/payment-paytr/internal/cart"
	"github.com/noah-isme/payment-paytr/internal/obs"
)

const (
	unknownIP   = "xxx.x.xxx.xxx"
	defaultLang = "tr"
)

// TokenRequest is the signed get-token payload.
type TokenRequest struct {
	MerchantID      string
	UserIP          string
	MerchantOID     string
	Email           string
	PaymentAmount   int64
	Currency        string
	UserBasket      string
	NoInstallment   bool
	MaxInstallment  int
	TestMode        bool
	DebugOn         bool
	TimeoutLimit    int
	UserName        string
	UserAddress     string
	UserPhone       string
	Lang            string
	MerchantOkURL   string
	MerchantFailURL string
	Token           string
}

// Values encodes the request as the form PayTR expects.
func (r TokenRequest) Values() url.Values {
	v := url.Values{}
	v.Set("merchant_id", r.MerchantID)
	v.Set("user_ip", r.UserIP)
	v.Set("merchant_oid", r.MerchantOID)
	v.Set("email", r.Email)
	v.Set("payment_amount", strconv.FormatInt(r.PaymentAmount, 10))
	v.Set("currency", r.Currency)
	v.Set("user_basket", r.UserBasket)
	v.Set("no_installment", flag(r.NoInstallment))
	v.Set("max_installment", strconv.Itoa(r.MaxInstallment))
	v.Set("test_mode", flag(r.TestMode))
	v.Set("debug_on", flag(r.DebugOn))
	v.Set("user_name", r.UserName)
	v.Set("user_address", r.UserAddress)
	v.Set("user_phone", r.UserPhone)
	v.Set("lang", r.Lang)
	v.Set("paytr_token", r.Token)
	if r.TimeoutLimit > 0 {
		v.Set("timeout_limit", strconv.Itoa(r.TimeoutLimit))
	}
	if r.MerchantOkURL != "" {
		v.Set("merchant_ok_url", r.MerchantOkURL)
	}
	if r.MerchantFailURL != "" {
		v.Set("merchant_fail_url", r.MerchantFailURL)
	}
	return v
}

// BuildTokenRequest assembles and signs the get-token payload for a cart. Missing
// customer or address fields are sent empty.
func BuildTokenRequest(c cart.Cart, amount int64, currency string, merchant MerchantConfig) (TokenRequest, error) {
	basket, err := encodeBasket(c.Items)
	if err != nil {
		return TokenRequest{}, err
	}
	req := TokenRequest{
		MerchantID:      merchant.MerchantID,
		UserIP:          userIP(c),
		MerchantOID:     MerchantOID(c.ID),
		PaymentAmount:   amount,
		Currency:        strings.ToUpper(strings.TrimSpace(currency)),
		UserBasket:      basket,
		NoInstallment:   merchant.NoInstallment,
		MaxInstallment:  merchant.MaxInstallment,
		TestMode:        merchant.TestMode,
		DebugOn:         merchant.DebugOn,
		TimeoutLimit:    merchant.TimeoutLimit,
		Lang:            defaultLang,
		MerchantOkURL:   merchant.MerchantOkURL,
		MerchantFailURL: merchant.MerchantFailURL,
	}
	if c.Customer != nil {
		req.Email = c.Customer.Email
		if lang, ok := c.Customer.Metadata["lang"].(string); ok && strings.TrimSpace(lang) != "" {
			req.Lang = lang
		}
	}
	if addr := c.BillingAddress; addr != nil {
		req.UserName = strings.TrimSpace(addr.FirstName + " " + addr.LastName)
		req.UserPhone = addr.Phone
		req.UserAddress = formatAddress(*addr)
	}
	req.Token = signToken(req, merchant.MerchantKey, merchant.MerchantSalt)
	return req, nil
}

// signToken computes paytr_token over the fields in the order PayTR documents.
func signToken(r TokenRequest, key, salt string) string {
	var b strings.Builder
	b.WriteString(r.MerchantID)
	b.WriteString(r.UserIP)
	b.WriteString(r.MerchantOID)
	b.WriteString(r.Email)
	b.WriteString(strconv.FormatInt(r.PaymentAmount, 10))
	b.WriteString(r.UserBasket)
	b.WriteString(flag(r.NoInstallment))
	b.WriteString(strconv.Itoa(r.MaxInstallment))
	b.WriteString(r.Currency)
	b.WriteString(flag(r.TestMode))
	b.WriteString(salt)
	return hmacBase64(key, b.String())
}

func hmacBase64(key, data string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// encodeBasket renders items as base64(JSON([[title, price, qty], ...])) with
// prices in major units and two decimals.
func encodeBasket(items []cart.LineItem) (string, error) {
	rows := make([][3]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, [3]string{
			it.Title,
			fmt.Sprintf("%.2f", float64(it.UnitPrice)/100),
			strconv.Itoa(it.Quantity),
		})
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rows); err != nil {
		return "", fmt.Errorf("encode basket: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func userIP(c cart.Cart) string {
	if ip, ok := c.Context["ip"].(string); ok && strings.TrimSpace(ip) != "" {
		return ip
	}
	return unknownIP
}

func formatAddress(a cart.Address) string {
	parts := make([]string, 0, 3)
	for _, group := range [][]string{
		{a.Address1, a.Address2},
		{a.PostalCode, a.City, a.Province},
		{a.CountryCode},
	} {
		var fields []string
		for _, f := range group {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		if len(fields) > 0 {
			parts = append(parts, strings.Join(fields, " "))
		}
	}
	return strings.Join(parts, ", ")
}

// GenerateToken builds the signed payload for the cart and exchanges it for a
// checkout token. Failures of the gateway call are returned as *InitiationError.
func (p *PayTR) GenerateToken(ctx context.Context, cartID string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PayTR.GenerateToken")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		elapsed := obs.DurationMillis(time.Since(start))
		span.SetAttributes(
			attribute.String("payment.provider", Identifier),
			attribute.String("payment.token.result", result),
			attribute.Float64("payment.token.duration_ms", elapsed),
		)
		if obs.PaymentTokenTotal != nil {
			obs.PaymentTokenTotal.WithLabelValues(Identifier, result).Inc()
		}
		if obs.PaymentTokenLatency != nil {
			obs.PaymentTokenLatency.WithLabelValues(Identifier, result).Observe(elapsed)
		}
	}()

	c, err := p.carts.Retrieve(ctx, cartID, cart.DefaultRetrieveConfig)
	if err != nil {
		return "", fmt.Errorf("retrieve cart %s: %w", cartID, err)
	}
	amount, err := p.totals.Total(ctx, c)
	if err != nil {
		return "", fmt.Errorf("compute cart total: %w", err)
	}
	region, err := p.regions.RetrieveRegion(ctx, c.RegionID)
	if err != nil {
		return "", fmt.Errorf("retrieve region %s: %w", c.RegionID, err)
	}
	req, err := BuildTokenRequest(c, amount, region.CurrencyCode, p.merchant)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("payment.merchant_oid", req.MerchantOID))

	token, err := p.client.Request(ctx, req.Values())
	if err != nil {
		span.RecordError(err)
		p.log.Warn().Err(err).Str("cart_id", cartID).Str("merchant_oid", req.MerchantOID).Msg("paytr token request failed")
		return "", err
	}
	result = "success"
	p.log.Info().Str("cart_id", cartID).Str("merchant_oid", req.MerchantOID).Int64("amount", amount).Msg("paytr token issued")
	return token, nil
}
