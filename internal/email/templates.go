package email

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/example/swirly-orders/internal/domain/order"
)

// formatRupees renders an amount with thousands separators, dropping the
// paise when the amount is whole.
func formatRupees(amount float64) string {
	return "₹" + humanize.CommafWithDigits(amount, 2)
}

// BuildOrderConfirmationBody builds the HTML body of the order confirmation email.
func BuildOrderConfirmationBody(orderID string, total float64, items []order.LineItem) string {
	var itemsHTML strings.Builder
	for _, item := range items {
		itemsHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			html.EscapeString(item.Name),
			item.Quantity,
			formatRupees(item.Price*float64(item.Quantity)),
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="color: #e65c00; font-size: 24px;">Thanks for your order!</h1>
	<p>Order <strong style="font-family: monospace;">%s</strong> is confirmed and the kitchen has it.</p>
	<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
		<tbody>
			%s
		</tbody>
	</table>
	<p style="text-align: right; font-size: 20px;">Total <strong>%s</strong></p>
	<p style="font-size: 12px; color: #999;">You can track your order live from the My Orders page.</p>
</body>
</html>`, html.EscapeString(orderID), itemsHTML.String(), formatRupees(total))
}

// BuildStatusUpdateBody builds the HTML body of a status change email. The
// expected time of the next stage is given relative to now.
func BuildStatusUpdateBody(orderID string, status order.Status, now time.Time) string {
	next := "Enjoy your meal!"
	if !status.Terminal() {
		eta := now.Add(status.ExpectedDuration())
		upcoming, _ := order.Next(status)
		next = fmt.Sprintf("Next up: %s, expected %s.", upcoming.Label(), humanize.RelTime(eta, now, "ago", "from now"))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="color: #e65c00; font-size: 24px;">%s</h1>
	<p>Order <strong style="font-family: monospace;">%s</strong> is %.0f%% of the way there.</p>
	<p>%s</p>
</body>
</html>`, status.Label(), html.EscapeString(orderID), order.Progress(&order.Order{Status: status}), next)
}
