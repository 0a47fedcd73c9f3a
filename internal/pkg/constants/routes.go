package constants

// Static route constants
const (
	WebhookAppStoreRoute       = "/webhooks/appstore"
	WebhookAppStoreVerifyRoute = "/webhooks/appstore/verify"
	APIRoute                   = "/api"
	APIV1Route                 = "/v1"
)
