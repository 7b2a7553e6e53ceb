package endpoints

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"git.sr.ht/~aondrejcak/payout-api/endpoints/payments"
	"git.sr.ht/~aondrejcak/payout-api/endpoints/vendors"
	"git.sr.ht/~aondrejcak/payout-api/kernel"
	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/middleware"
	"git.sr.ht/~aondrejcak/payout-api/orchestrator"
	"git.sr.ht/~aondrejcak/payout-api/webhooks"
)

type Services struct {
	Store      *ledger.Store
	Payments   *orchestrator.Service
	Reconciler *webhooks.Reconciler
}

func NewRouter(art *kernel.AppRuntime, svc Services) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{}); err != nil {
		return nil, err
	}

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		art.Logger.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "a panic occurred, request aborted",
		})
	}))

	if len(art.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     art.CorsOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "X-Api-Key", payments.IdempotencyHeader},
			ExposeHeaders:    []string{"Content-Length", "Access-Control-Allow-Origin", "Access-Control-Allow-Headers", "Content-Type", payments.IdempotencyHeader},
			AllowCredentials: true,
			MaxAge:           7 * time.Hour * 24,
			AllowAllOrigins:  false,
		}))
	}

	r.Use(otelgin.Middleware(art.ServiceName))
	r.Use(middleware.TracerMiddleware(art))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	r.Use(func() gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Next()

			if len(c.Errors) > 0 && !c.Writer.Written() {
				c.JSON(500, &gin.Error{
					Err: errors.New(c.Errors.Last().Error()),
				})
				return
			}
		}
	}())

	r.GET("/health", Health(svc.Store))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", Health(svc.Store))
	v1.POST("/webhooks/provider", ProviderWebhook(svc.Reconciler))

	authorized := v1.Group("/")
	authorized.Use(middleware.ApiKeyMiddleware(art))
	{
		payments.RegisterController(authorized, svc.Payments)
		vendors.RegisterController(authorized, svc.Store, art.DestinationCurrency)
	}

	return r, nil
}
