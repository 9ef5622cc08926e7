package mail

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/FelixBrandt/GiftMile/internal/pkg/env"
)

// GiftLink builds the storefront selection URL for a token. The base can be
// overridden per deployment; shop is the merchant's public domain.
func GiftLink(shop, token string) string {
	base := strings.TrimRight(env.GetEnv("GIFT_PAGE_BASE_URL", ""), "/")
	if base == "" {
		base = fmt.Sprintf("https://%s/pages/free-gift", shop)
	}
	return fmt.Sprintf("%s?token=%s", base, token)
}

// GiftEmailBody renders the notification email. Kept as string assembly
// rather than html/template since the layout is a single fixed block.
func GiftEmailBody(customerName, link string, maxProducts int, expiresAt time.Time) string {
	name := strings.TrimSpace(customerName)
	if name == "" {
		name = "there"
	}
	plural := "gift"
	if maxProducts > 1 {
		plural = fmt.Sprintf("up to %d gifts", maxProducts)
	}
	return fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>Thank you for being a loyal subscriber! You have earned a free gift with your next order.</p>
<p>Pick %s here:</p>
<p><a href="%s">Choose your free gift</a></p>
<p>This link is valid until %s.</p>
<p>Happy unboxing!</p>
</body></html>`,
		html.EscapeString(name),
		html.EscapeString(plural),
		link,
		expiresAt.UTC().Format("January 2, 2006"),
	)
}
