// Package receipt renders shop receipts as HTML fragments for the chat UI.
package receipt

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/codewandler/shopassist-go/shop"
)

//go:embed templates/*.html
var files embed.FS

const dateLayout = "January 02, 2006"

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		return t.Format(dateLayout)
	},
	"money": func(f float64) string {
		return fmt.Sprintf("$%.2f", f)
	},
}).ParseFS(files, "templates/*.html"))

var names = map[shop.ReceiptKind]string{
	shop.ReceiptOrderStatus:       "order_status.html",
	shop.ReceiptOrderCancellation: "order_cancellation.html",
	shop.ReceiptCallback:          "callback.html",
}

// Render returns the HTML for r. The caption is not part of the output.
func Render(r shop.Receipt) (string, error) {
	name, ok := names[r.Kind]
	if !ok {
		return "", fmt.Errorf("receipt: unknown kind %q", r.Kind)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, r); err != nil {
		return "", fmt.Errorf("receipt: %w", err)
	}
	return buf.String(), nil
}
