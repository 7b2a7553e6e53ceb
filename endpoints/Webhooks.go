package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/webhooks"
)

const SignatureHeader = "X-Webhook-Signature"

func ProviderWebhook(rec *webhooks.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		rt := kernel.Runtime(c)
		rt.StepInto("webhook.handler")

		body, err := c.GetRawData()
		if err != nil {
			rt.Ef(http.StatusBadRequest, "could not read body: %v", err)
			return
		}

		outcome, err := rec.Ingest(rt.SpanContext, body, c.GetHeader(SignatureHeader))
		if err != nil {
			rt.Fail(err)
			return
		}

		// Senders only know processed and already_processed.
		if outcome == webhooks.Ignored {
			outcome = webhooks.Processed
		}
		c.JSON(http.StatusOK, gin.H{"status": outcome})
		rt.EndBlock()
	}
}
