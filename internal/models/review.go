package models

// Review is a single approved product review.
type Review struct {
	ID                 int    `json:"id"`
	User               string `json:"user"`
	Rating             int    `json:"rating"`
	Title              string `json:"title"`
	Comment            string `json:"comment"`
	IsVerifiedPurchase bool   `json:"is_verified_purchase"`
	CreatedAt          string `json:"created_at"`
}

// ReviewsResult is the backend's review listing for one product.
type ReviewsResult struct {
	Success            bool        `json:"success"`
	Reviews            []Review    `json:"reviews"`
	AverageRating      float64     `json:"average_rating"`
	TotalReviews       int         `json:"total_reviews"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	Error              string      `json:"error,omitempty"`
}

// Eligibility reasons reported by the backend when a review is not allowed.
const (
	ReasonLoginRequired   = "login_required"
	ReasonAlreadyReviewed = "already_reviewed"
	ReasonNoPurchase      = "no_purchase"
)

// ReviewEligibility reports whether the current customer may review a product.
type ReviewEligibility struct {
	Success   bool   `json:"success"`
	CanReview bool   `json:"can_review"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ReviewRequest is the payload for submitting a review.
type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
	OrderID string `json:"order_id,omitempty"`
}

// ContactRequest is the payload for the support/contact endpoint.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SubmitResult is the generic answer to a write request (review, contact).
type SubmitResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthStatus is the backend's authentication status.
type AuthStatus struct {
	Success         bool   `json:"success"`
	IsAuthenticated bool   `json:"is_authenticated"`
	UserID          int    `json:"user_id,omitempty"`
	Username        string `json:"username,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ProductsResult carries a product list or an error.
type ProductsResult struct {
	Success  bool      `json:"success"`
	Products []Product `json:"products"`
	Error    string    `json:"error,omitempty"`
}

// ProductResult carries a single product or an error.
type ProductResult struct {
	Success bool     `json:"success"`
	Product *Product `json:"product,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// CategoriesResult carries the category list or an error.
type CategoriesResult struct {
	Success    bool       `json:"success"`
	Categories []Category `json:"categories"`
	Error      string     `json:"error,omitempty"`
}
