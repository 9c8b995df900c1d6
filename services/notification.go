package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"text/template"

	"food_ordering/models"
)

// Notifier tells the customer about their order. Failures are logged by
// the caller and never undo the order.
type Notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order, items []models.OrderItem) error
}

var orderPlacedTemplate = template.Must(template.New("order_placed").Parse(
	`Subject: Order {{.Order.Code}} received
To: {{.Order.CustomerEmail}}
Content-Type: text/plain; charset=UTF-8

Hello {{.Order.CustomerName}},

We received your order {{.Order.Code}}.

{{range .Items}}{{.Quantity}} x {{.ProductName}}  {{.LineTotal.StringFixed 0}}
{{end}}
Subtotal:  {{.Order.Subtotal.StringFixed 0}}
Shipping:  {{.Order.ShippingFee.StringFixed 0}}
Discount: -{{.Order.DiscountAmount.StringFixed 0}}
Total:     {{.Order.TotalAmount.StringFixed 0}}

Delivery to: {{.Order.ShippingAddress}}
`))

func renderOrderPlaced(order *models.Order, items []models.OrderItem) ([]byte, error) {
	var buf bytes.Buffer
	err := orderPlacedTemplate.Execute(&buf, struct {
		Order *models.Order
		Items []models.OrderItem
	}{order, items})
	return buf.Bytes(), err
}

type SMTPNotifier struct {
	addr string
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host, port, from string) *SMTPNotifier {
	return &SMTPNotifier{
		addr: net.JoinHostPort(host, port),
		from: from,
		send: smtp.SendMail,
	}
}

func (n *SMTPNotifier) OrderPlaced(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if order.CustomerEmail == "" {
		return nil
	}
	msg, err := renderOrderPlaced(order, items)
	if err != nil {
		return fmt.Errorf("render order email: %w", err)
	}
	if err := n.send(n.addr, nil, n.from, []string{order.CustomerEmail}, msg); err != nil {
		return fmt.Errorf("send order email to %s: %w", order.CustomerEmail, err)
	}
	return nil
}

// LogNotifier writes notifications to the log when no mail server is set.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OrderPlaced(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	n.log.InfoContext(ctx, "order placed notification",
		"order_code", order.Code,
		"email", order.CustomerEmail,
		"items", len(items),
		"total", order.TotalAmount.String())
	return nil
}
