// Package routes holds the gin handlers for the checkout API and the
// in-memory session registry behind them. Sessions live only in this
// process: navigating away (or idling past the TTL) discards them.
package routes

import (
	"log"
	"sync"
	"time"

	"enroll-middleware/checkout"
	"enroll-middleware/helpers"
	"enroll-middleware/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sessionEntry struct {
	sess     *checkout.Session
	lastSeen time.Time
}

// Registry maps session ids to live checkout sessions and evicts
// entries idle past the TTL.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: map[string]*sessionEntry{},
		ttl:      ttl,
	}
}

// Put registers a session and returns its id.
func (r *Registry) Put(sess *checkout.Session) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{sess: sess, lastSeen: time.Now()}
	return id
}

// Get returns the session for an id, refreshing its idle timer.
func (r *Registry) Get(id string) (*checkout.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = time.Now()
	return entry.sess, true
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Sweep drops sessions idle past the TTL; returns how many went.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	cutoff := time.Now().Add(-r.ttl)
	for id, entry := range r.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper evicts idle sessions on the given interval.
func (r *Registry) StartSweeper(interval time.Duration) {
	go func() {
		for range time.Tick(interval) {
			if n := r.Sweep(); n > 0 {
				log.Printf("evicted %v idle checkout sessions", n)
			}
		}
	}()
}

type startCheckoutBody struct {
	ClassID string `json:"class_id"`
}

type startCheckoutResponse struct {
	SessionID string         `json:"session_id"`
	State     checkout.State `json:"state"`
}

// StartCheckout creates a session, runs initialization and returns the
// session id plus the first state snapshot. Initialization failures
// are recoverable and ride back on the state's error field.
func StartCheckout(c *gin.Context, reg *Registry, svc checkout.Services, cfg checkout.Config) {
	var body startCheckoutBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ClassID == "" {
		helpers.Simple400(c)
		return
	}
	sess := checkout.NewSession(svc, cfg)
	if err := sess.Initialize(c.Request.Context(), body.ClassID); err != nil {
		log.Printf("checkout init: %v", err.Error())
	}
	id := reg.Put(sess)
	c.JSON(200, startCheckoutResponse{SessionID: id, State: sess.Snapshot()})
}

// session resolves the :id path param; sets the gin response and
// returns false when the session is unknown.
func session(c *gin.Context, reg *Registry) (*checkout.Session, bool) {
	id := c.Param("id")
	sess, ok := reg.Get(id)
	if !ok {
		helpers.Simple404(c)
		return nil, false
	}
	return sess, true
}

func respondState(c *gin.Context, sess *checkout.Session) {
	c.JSON(200, sess.Snapshot())
}

func GetState(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	respondState(c, sess)
}

type childBody struct {
	ChildID string `json:"child_id"`
	Multi   bool   `json:"multi"`
}

// PostChild selects a child: single-select by default, toggle
// semantics when multi is set.
func PostChild(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	var body childBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ChildID == "" {
		helpers.Simple400(c)
		return
	}
	if body.Multi {
		sess.ToggleChildSelection(body.ChildID)
	} else {
		sess.SelectChild(body.ChildID)
	}
	respondState(c, sess)
}

type feeBody struct {
	ChildID  string `json:"child_id"`
	FeeIndex int    `json:"fee_index"`
}

func PostFee(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	var body feeBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ChildID == "" {
		helpers.Simple400(c)
		return
	}
	sess.ToggleCustomFee(body.ChildID, body.FeeIndex)
	respondState(c, sess)
}

type methodBody struct {
	Method string `json:"method"`
}

func PostPaymentMethod(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	var body methodBody
	if err := c.ShouldBindJSON(&body); err != nil {
		helpers.Simple400(c)
		return
	}
	switch checkout.PaymentMethod(body.Method) {
	case checkout.PayFull, checkout.PaySubscribe, checkout.PayInstallments:
		sess.SelectPaymentMethod(checkout.PaymentMethod(body.Method))
	default:
		helpers.Simple400(c)
		return
	}
	respondState(c, sess)
}

func PostInstallmentPlan(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	var plan models.InstallmentPlan
	if err := c.ShouldBindJSON(&plan); err != nil || plan.Count < 1 {
		helpers.Simple400(c)
		return
	}
	sess.SelectInstallmentPlan(plan)
	respondState(c, sess)
}

type discountBody struct {
	Code string `json:"code"`
}

func PostDiscount(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	var body discountBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Code == "" {
		helpers.Simple400(c)
		return
	}
	if err := sess.ApplyDiscount(c.Request.Context(), body.Code); err != nil {
		log.Printf("apply discount: %v", err.Error())
	}
	respondState(c, sess)
}

func DeleteDiscount(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	if err := sess.RemoveDiscount(c.Request.Context()); err != nil {
		log.Printf("remove discount: %v", err.Error())
	}
	respondState(c, sess)
}

func PostOrder(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	if _, err := sess.CreateOrder(c.Request.Context()); err != nil {
		log.Printf("create order: %v", err.Error())
	}
	respondState(c, sess)
}

func PostPayment(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	if err := sess.InitiatePayment(c.Request.Context()); err != nil {
		log.Printf("initiate payment: %v", err.Error())
	}
	respondState(c, sess)
}

type confirmBody struct {
	PaymentMethodID string `json:"payment_method_id"`
}

func PostConfirmPayment(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	var body confirmBody
	if err := c.ShouldBindJSON(&body); err != nil || body.PaymentMethodID == "" {
		helpers.Simple400(c)
		return
	}
	sess.ConfirmPayment(c.Request.Context(), body.PaymentMethodID)
	respondState(c, sess)
}

func PostRetry(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	sess.Retry()
	respondState(c, sess)
}

func PostReset(c *gin.Context, reg *Registry) {
	sess, ok := session(c, reg)
	if !ok {
		return
	}
	sess.Reset()
	respondState(c, sess)
}

func DeleteSession(c *gin.Context, reg *Registry) {
	id := c.Param("id")
	if _, ok := reg.Get(id); !ok {
		helpers.Simple404(c)
		return
	}
	reg.Delete(id)
	helpers.Simple200OK(c)
}
