package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BTreeMap/ovnchat/internal/models"
	"github.com/BTreeMap/ovnchat/internal/resilience"
)

func noRetry() *resilience.Executor {
	return resilience.NewExecutor(resilience.NameBackend,
		resilience.WithRetry(resilience.NewRetry(resilience.WithMaxRetries(0))))
}

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(append([]Option{WithBaseURL(srv.URL + "/"), WithExecutor(noRetry())}, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestProductsParsesDecimalStrings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/list/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		io.WriteString(w, `{"success": true, "products": [
			{"id": 1, "name": "Vacuum Cup", "price": "1200.00", "compare_price": "999.00", "category_name": "Kitchen", "stock_quantity": 4, "avg_rating": 4.5},
			{"django_id": 2, "name": "Mug", "price": 500, "flash_sale_price": 350, "compare_price": 450, "main_image": "mug.jpg"}
		]}`)
	})
	c := newTestClient(t, mux)

	res := c.Products(context.Background(), 0)
	if !res.Success || len(res.Products) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	cup, mug := res.Products[0], res.Products[1]
	if cup.Price != 999 || cup.ComparePrice != 1200 || cup.Category != "Kitchen" || cup.Stock != 4 || cup.Rating != 4.5 {
		t.Errorf("cup parsed as %+v", cup)
	}
	if mug.ID != 2 || mug.Price != 350 || mug.ComparePrice != 450 || !mug.IsFlashSale || mug.Image != "mug.jpg" || mug.Category != "General" {
		t.Errorf("mug parsed as %+v", mug)
	}
}

func TestOrderDetailAndGuestError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/api/A1B2C3D4/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("contact") == "" {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "error": "Please provide contact phone for guest orders"})
			return
		}
		io.WriteString(w, `{"success": true, "order": {"order_id": "a1b2c3d4", "order_number": "OVN-1001", "status": "shipped",
			"subtotal": "1500.00", "shipping_cost": "100", "discount_amount": 0, "total_amount": "1600.00",
			"items": [{"product_id": 1, "product_name": "Cup", "quantity": 2, "unit_price": "750.00", "total_price": "1500.00"}],
			"history": [{"action": "status_change", "old_value": "confirmed", "new_value": "shipped"}]}}`)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	res := c.OrderDetail(ctx, "A1B2C3D4", "")
	if res.Success || res.Error != "Please provide contact phone for guest orders" {
		t.Fatalf("expected guest error, got %+v", res)
	}

	res = c.OrderDetail(ctx, "A1B2C3D4", "9841234567")
	if !res.Success || res.Order == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	o := res.Order
	if o.Number() != "OVN-1001" || o.TotalAmount != 1600 || len(o.Items) != 1 || o.Items[0].UnitPrice != 750 || len(o.History) != 1 {
		t.Errorf("order parsed as %+v", o)
	}
	if o.ComputedTotal() != 1600 {
		t.Errorf("computed total %v", o.ComputedTotal())
	}
}

func TestErrorShapes(t *testing.T) {
	var serverCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/9/", func(w http.ResponseWriter, r *http.Request) {
		serverCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<html>boom</html>")
	})
	mux.HandleFunc("/api/products/8/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Product not found"})
	})
	mux.HandleFunc("/api/products/flash-sale/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{"products": []any{}})
	})
	c := newTestClient(t, mux, WithTimeout(20*time.Millisecond))
	ctx := context.Background()

	if res := c.ProductDetail(ctx, 9); res.Error != "Server error: 500" {
		t.Errorf("500 error = %q", res.Error)
	}
	if res := c.ProductDetail(ctx, 8); res.Error != "Product not found" {
		t.Errorf("404 error = %q", res.Error)
	}
	if res := c.FlashSaleProducts(ctx); res.Error != MsgTimeout {
		t.Errorf("timeout error = %q", res.Error)
	}

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	offline := NewClient(WithBaseURL(dead.URL), WithExecutor(noRetry()))
	if res := offline.Categories(ctx); res.Success || res.Error != MsgUnreachable {
		t.Errorf("connection error = %+v", res)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	b := resilience.NewCircuitBreaker(resilience.NameBackend, resilience.WithFailureThreshold(2))
	exec := resilience.NewExecutor(resilience.NameBackend,
		resilience.WithRetry(resilience.NewRetry(resilience.WithMaxRetries(0))),
		resilience.WithBreaker(b))
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/api/my-orders/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "No orders found"})
	})
	c := newTestClient(t, mux, WithExecutor(exec))
	for i := 0; i < 3; i++ {
		if res := c.OrdersByPhone(context.Background(), "9841234567"); res.Error != "No orders found" {
			t.Fatalf("call %d: %+v", i, res)
		}
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("404s must not open the breaker, got %s", b.State())
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	var got models.OrderRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/api/create/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Backend busy"})
	})
	retrying := resilience.NewExecutor(resilience.NameBackend,
		resilience.WithRetry(resilience.NewRetry(resilience.WithMaxRetries(3), resilience.WithBaseDelay(0), resilience.WithJitter(false))))
	c := newTestClient(t, mux, WithExecutor(retrying))

	res := c.CreateOrder(context.Background(), models.OrderRequest{
		CustomerName:  "Sita",
		ContactNumber: "9841234567",
		Items:         []models.OrderItemRequest{{ProductID: 1, Quantity: 2}},
	})
	if res.Success || res.Error != "Backend busy" {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("order creation attempted %d times, want 1", calls.Load())
	}
	if got.PaymentMethod != "cod" || got.Items[0].Quantity != 2 {
		t.Errorf("payload %+v", got)
	}
}

func TestReviewEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/5/reviews/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "average_rating": 4.5, "total_reviews": 2,
			"rating_distribution": {"5": 1, "4": 1},
			"reviews": [{"id": 1, "user": "ram", "rating": 5, "title": "Great"}, {"id": 2, "rating": 4}]}`)
	})
	mux.HandleFunc("/api/products/5/can-review/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"can_review": false, "reason": models.ReasonLoginRequired, "message": "Please log in"})
	})
	mux.HandleFunc("/api/products/5/submit-review/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Thanks!"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	reviews := c.ProductReviews(ctx, 5)
	if !reviews.Success || len(reviews.Reviews) != 2 || reviews.RatingDistribution[5] != 1 || reviews.Reviews[1].User != "Anonymous" {
		t.Fatalf("reviews parsed as %+v", reviews)
	}
	elig := c.CanReview(ctx, 5)
	if !elig.Success || elig.CanReview || elig.Reason != models.ReasonLoginRequired {
		t.Fatalf("eligibility parsed as %+v", elig)
	}
	sub := c.SubmitReview(ctx, 5, models.ReviewRequest{Rating: 5, Title: "Nice", Comment: "Works well enough"})
	if !sub.Success || sub.Message != "Thanks!" {
		t.Fatalf("submit parsed as %+v", sub)
	}
}
