package constants

// Static route constants
const (
	PublicRoute        = "/"
	PricingRoute       = "/pricing"
	CitiesRoute        = "/cities"
	StripeWebhookRoute = "/webhooks/stripe"

	// API routes, relative to the /api group
	LeadsRoute    = "/leads"
	MyLeadsRoute  = "/my-leads"
	MapLeadsRoute = "/map-leads"
)
