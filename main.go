package main

import (
	"fmt"
	"log"
	"time"

	"enroll-middleware/checkout"
	"enroll-middleware/children"
	"enroll-middleware/classes"
	"enroll-middleware/config"
	"enroll-middleware/enrollments"
	"enroll-middleware/helpers"
	"enroll-middleware/orders"
	"enroll-middleware/payments"
	"enroll-middleware/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	conf, err := config.LoadConfigYaml()
	if err != nil {
		log.Fatalf("failed to load config: %v", err.Error())
	}

	cache, err := classes.NewRedisClient(conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		// capacity caching is best-effort; run without it
		log.Printf("redis unavailable, capacity caching disabled: %v", err.Error())
		cache = nil
	}

	classSvc := classes.New(
		conf.Backend.BaseURL,
		cache,
		time.Duration(conf.Checkout.CapacityCacheSeconds)*time.Second,
	)

	svc := checkout.Services{
		Classes:     classSvc,
		Children:    children.New(conf.Backend.BaseURL),
		Payments:    payments.NewStripe(conf.Stripe.SecretKey, conf.Stripe.Currency),
		Enrollments: enrollments.New(conf.Backend.BaseURL),
	}
	if conf.Backend.BaseURL == "" {
		log.Printf("no backend base url configured, using local postgres order store")
		svc.Orders = orders.NewStore(
			conf.PostgresConnStr(),
			classSvc,
			conf.Checkout.ProcessingFeePercent,
			conf.Checkout.SiblingTiers,
		)
	} else {
		svc.Orders = orders.NewClient(conf.Backend.BaseURL)
	}

	checkoutCfg := checkout.Config{
		ProcessingFeePercent: conf.Checkout.ProcessingFeePercent,
		SiblingTiers:         conf.Checkout.SiblingTiers,
	}

	reg := routes.NewRegistry(time.Duration(conf.Checkout.SessionTTLSeconds) * time.Second)
	reg.StartSweeper(time.Minute)

	// start up the api server
	r := gin.Default()
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.OPTIONS("/api/checkout", func(c *gin.Context) {
		helpers.SetCORSMethods(c)
		helpers.Simple200OK(c)
	})
	r.POST("/api/checkout", func(c *gin.Context) {
		routes.StartCheckout(c, reg, svc, checkoutCfg)
	})
	r.GET("/api/checkout/:id", func(c *gin.Context) {
		routes.GetState(c, reg)
	})
	r.POST("/api/checkout/:id/children", func(c *gin.Context) {
		routes.PostChild(c, reg)
	})
	r.POST("/api/checkout/:id/fees", func(c *gin.Context) {
		routes.PostFee(c, reg)
	})
	r.POST("/api/checkout/:id/payment-method", func(c *gin.Context) {
		routes.PostPaymentMethod(c, reg)
	})
	r.POST("/api/checkout/:id/installment-plan", func(c *gin.Context) {
		routes.PostInstallmentPlan(c, reg)
	})
	r.POST("/api/checkout/:id/discount", func(c *gin.Context) {
		routes.PostDiscount(c, reg)
	})
	r.DELETE("/api/checkout/:id/discount", func(c *gin.Context) {
		routes.DeleteDiscount(c, reg)
	})
	r.POST("/api/checkout/:id/order", func(c *gin.Context) {
		routes.PostOrder(c, reg)
	})
	r.POST("/api/checkout/:id/payment", func(c *gin.Context) {
		routes.PostPayment(c, reg)
	})
	r.POST("/api/checkout/:id/payment/confirm", func(c *gin.Context) {
		routes.PostConfirmPayment(c, reg)
	})
	r.POST("/api/checkout/:id/retry", func(c *gin.Context) {
		routes.PostRetry(c, reg)
	})
	r.POST("/api/checkout/:id/reset", func(c *gin.Context) {
		routes.PostReset(c, reg)
	})
	r.DELETE("/api/checkout/:id", func(c *gin.Context) {
		routes.DeleteSession(c, reg)
	})

	err = r.Run(
		fmt.Sprintf(
			"%v:%v",
			conf.Server.BindAddr,
			conf.Server.BindPort,
		),
	)
	if err != nil {
		log.Fatalf("error running gin: %v", err.Error())
	}
}
