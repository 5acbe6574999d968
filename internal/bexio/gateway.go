package bexio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"sgjobs_backend/platform/apperr"

	"github.com/shopspring/decimal"
)

// HTTPClient is the transport the gateway reads through. *Client implements it.
type HTTPClient interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, payload interface{}, out interface{}) error
}

// Address is the delivery address of a note.
type Address struct {
	Street  string
	Zip     string
	City    string
	Country string
}

// DeliveryNote is the subset of a bexio delivery note a job is built from.
type DeliveryNote struct {
	ID              int64
	DocumentNr      string
	CustomerName    string
	DeliveryAddress Address
	Phones          []string
	// SalesOrderNr is empty when the note references no order.
	SalesOrderNr string
}

// Position is one delivery note line item.
type Position struct {
	ExternalID  int64
	Index       int64
	ArticleNr   string
	Title       string
	Description string
	Quantity    decimal.Decimal
	Unit        string
}

// Gateway reads delivery notes, positions and invoices from bexio.
type Gateway struct {
	client HTTPClient
}

// NewGateway creates a Gateway over client.
func NewGateway(client HTTPClient) *Gateway {
	return &Gateway{client: client}
}

var (
	deliveryPhoneFields = []string{"phone", "mobile", "phone_fixed", "phone_mobile"}
	contactPhoneFields  = []string{"phone_fixed", "phone_mobile", "phone_direct", "mobile"}
)

type apiDeliveryNote struct {
	ID              flexInt                `json:"id"`
	DocumentNr      string                 `json:"document_nr"`
	ContactName     string                 `json:"contact_name"`
	Reference       *string                `json:"reference"`
	DeliveryAddress map[string]interface{} `json:"delivery_address"`
	Contact         map[string]interface{} `json:"contact"`
}

type apiPosition struct {
	ID          flexInt             `json:"id"`
	Position    *flexInt            `json:"position"`
	ArticleNr   *string             `json:"article_nr"`
	Text        *string             `json:"text"`
	Description *string             `json:"description"`
	Amount      decimal.NullDecimal `json:"amount"`
	UnitName    *string             `json:"unit_name"`
}

type apiInvoice struct {
	ID     flexInt     `json:"id"`
	IsPaid interface{} `json:"is_paid"`
}

// GetDeliveryNote fetches the first delivery note with the given document number.
func (g *Gateway) GetDeliveryNote(ctx context.Context, documentNr string) (DeliveryNote, error) {
	var notes []apiDeliveryNote
	query := url.Values{"document_nr": {documentNr}}
	if err := g.client.Get(ctx, "/kb_delivery_notes", query, &notes); err != nil {
		return DeliveryNote{}, upstream("fetch delivery note", err)
	}
	if len(notes) == 0 {
		return DeliveryNote{}, apperr.NotFound(fmt.Sprintf("delivery note %s not found in bexio", documentNr))
	}

	note := notes[0]
	result := DeliveryNote{
		ID:           int64(note.ID),
		DocumentNr:   note.DocumentNr,
		CustomerName: strings.TrimSpace(note.ContactName),
		DeliveryAddress: Address{
			Street:  stringValue(note.DeliveryAddress, "address_line1"),
			Zip:     stringValue(note.DeliveryAddress, "zip"),
			City:    stringValue(note.DeliveryAddress, "city"),
			Country: stringValue(note.DeliveryAddress, "country"),
		},
		Phones: extractPhones(note.DeliveryAddress, note.Contact),
	}
	if note.Reference != nil {
		result.SalesOrderNr = strings.TrimSpace(*note.Reference)
	}
	return result, nil
}

// GetPositions fetches the line items of a delivery note, ordered by upstream
// position index with the upstream id as fallback. No positions is not an error.
func (g *Gateway) GetPositions(ctx context.Context, deliveryNoteID int64) ([]Position, error) {
	var raw []apiPosition
	path := fmt.Sprintf("/kb_delivery_notes/%d/positions", deliveryNoteID)
	if err := g.client.Get(ctx, path, nil, &raw); err != nil {
		return nil, upstream("fetch delivery note positions", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		index := int64(p.ID)
		if p.Position != nil {
			index = int64(*p.Position)
		}
		qty := decimal.Zero
		if p.Amount.Valid {
			qty = p.Amount.Decimal
		}
		positions = append(positions, Position{
			ExternalID:  int64(p.ID),
			Index:       index,
			ArticleNr:   deref(p.ArticleNr),
			Title:       deref(p.Text),
			Description: deref(p.Description),
			Quantity:    qty,
			Unit:        deref(p.UnitName),
		})
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Index < positions[j].Index
	})
	return positions, nil
}

// GetPaymentStatus reports whether the invoice for salesOrderNr is paid.
// Without an order number nothing is fetched; a missing invoice is unpaid.
func (g *Gateway) GetPaymentStatus(ctx context.Context, salesOrderNr string) (bool, error) {
	salesOrderNr = strings.TrimSpace(salesOrderNr)
	if salesOrderNr == "" {
		return false, nil
	}

	var invoices []apiInvoice
	query := url.Values{"document_nr": {salesOrderNr}}
	if err := g.client.Get(ctx, "/kb_invoices", query, &invoices); err != nil {
		return false, upstream("fetch invoice", err)
	}
	if len(invoices) == 0 {
		return false, nil
	}
	return truthy(invoices[0].IsPaid), nil
}

// AppendComment posts text as a comment on the delivery note.
func (g *Gateway) AppendComment(ctx context.Context, deliveryNoteID int64, text string) error {
	path := fmt.Sprintf("/kb_delivery_notes/%d/comments", deliveryNoteID)
	if err := g.client.Post(ctx, path, map[string]string{"content": text}, nil); err != nil {
		return upstream("append delivery note comment", err)
	}
	return nil
}

// Ping issues a minimal authenticated read.
func (g *Gateway) Ping(ctx context.Context) error {
	var notes []json.RawMessage
	if err := g.client.Get(ctx, "/kb_delivery_notes", url.Values{"limit": {"1"}}, &notes); err != nil {
		return upstream("ping", err)
	}
	return nil
}

func upstream(op string, err error) error {
	msg := err.Error()
	switch typed := err.(type) {
	case *APIError:
		if typed.Message != "" {
			msg = typed.Message
		}
	case *NetworkError:
		if typed.Message != "" {
			msg = typed.Message
		}
	}
	return apperr.Upstream(msg, err).WithOp("bexio." + strings.ReplaceAll(op, " ", "_"))
}

// extractPhones collects delivery-address numbers before contact numbers,
// trimmed and deduplicated in first-seen order.
func extractPhones(delivery, contact map[string]interface{}) []string {
	seen := make(map[string]struct{})
	phones := make([]string, 0, 2)
	add := func(source map[string]interface{}, fields []string) {
		for _, field := range fields {
			v := stringValue(source, field)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			phones = append(phones, v)
		}
	}
	add(delivery, deliveryPhoneFields)
	add(contact, contactPhoneFields)
	return phones
}

func stringValue(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truthy(v interface{}) bool {
	switch typed := v.(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		b, err := strconv.ParseBool(typed)
		return err == nil && b
	default:
		return false
	}
}

// flexInt decodes integers sent either as JSON numbers or numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = flexInt(n)
	return nil
}
