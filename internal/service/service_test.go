package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/swad-client/internal/admin"
	"github.com/mmeshcher/swad-client/internal/checkout"
	"github.com/mmeshcher/swad-client/internal/model"
	"github.com/mmeshcher/swad-client/internal/store"
)

type stubBackend struct {
	mu sync.Mutex

	dishes    []model.Dish
	dishesErr error

	orders    []model.Order
	allOrders []model.Order

	placeOrderID  int64
	placeOrderErr error
	placeCalls    int

	coupon      *model.Coupon
	couponErr   error
	couponCalls int

	profile *model.UserProfile

	isAdmin      map[model.Principal]bool
	isAdminCalls int

	statusErr error
}

func (s *stubBackend) GetAllDishes(ctx context.Context) ([]model.Dish, error) {
	return s.dishes, s.dishesErr
}

func (s *stubBackend) GetDishesByCategory(ctx context.Context, category string) ([]model.Dish, error) {
	var out []model.Dish
	for _, d := range s.dishes {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubBackend) GetVegDishes(ctx context.Context) ([]model.Dish, error) {
	var out []model.Dish
	for _, d := range s.dishes {
		if d.IsVeg {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubBackend) AddDish(ctx context.Context, principal model.Principal, dish model.Dish) (int64, error) {
	return 1, nil
}

func (s *stubBackend) EditDish(ctx context.Context, principal model.Principal, dish model.Dish) error {
	return nil
}

func (s *stubBackend) DeleteDish(ctx context.Context, principal model.Principal, id int64) error {
	return nil
}

func (s *stubBackend) PlaceOrder(ctx context.Context, principal model.Principal, items []model.OrderItem, totalAmount int64, paymentMethod string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeCalls++
	if s.placeOrderErr != nil {
		return 0, s.placeOrderErr
	}
	s.allOrders = append(s.allOrders, model.Order{
		ID:          s.placeOrderID,
		User:        principal,
		Items:       items,
		TotalAmount: totalAmount,
		Status:      string(model.OrderStatusPending),
	})
	return s.placeOrderID, nil
}

func (s *stubBackend) GetUserOrders(ctx context.Context, principal model.Principal) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Order
	for _, o := range s.allOrders {
		if o.User == principal {
			out = append(out, o)
		}
	}
	return append(out, s.orders...), nil
}

func (s *stubBackend) GetAllOrders(ctx context.Context, principal model.Principal) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, len(s.allOrders))
	copy(out, s.allOrders)
	return out, nil
}

func (s *stubBackend) UpdateOrderStatus(ctx context.Context, principal model.Principal, orderID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return s.statusErr
	}
	for i := range s.allOrders {
		if s.allOrders[i].ID == orderID {
			s.allOrders[i].Status = status
		}
	}
	return nil
}

func (s *stubBackend) MakeReservation(ctx context.Context, principal model.Principal, name, phone, date, timeSlot string, guests int64) (int64, error) {
	return 1, nil
}

func (s *stubBackend) GetUserReservations(ctx context.Context, principal model.Principal) ([]model.Reservation, error) {
	return nil, nil
}

func (s *stubBackend) SubmitReview(ctx context.Context, principal model.Principal, rating int64, comment string) error {
	return nil
}

func (s *stubBackend) GetAllReviews(ctx context.Context) ([]model.Review, error) {
	return nil, nil
}

func (s *stubBackend) AddCoupon(ctx context.Context, principal model.Principal, code string, discount int64) error {
	return nil
}

func (s *stubBackend) ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.couponCalls++
	if s.couponErr != nil {
		return nil, s.couponErr
	}
	if s.coupon != nil && s.coupon.Code == code {
		return s.coupon, nil
	}
	return nil, nil
}

func (s *stubBackend) GetCallerUserProfile(ctx context.Context, principal model.Principal) (*model.UserProfile, error) {
	return s.profile, nil
}

func (s *stubBackend) SaveCallerUserProfile(ctx context.Context, principal model.Principal, profile model.UserProfile) error {
	return nil
}

func (s *stubBackend) IsCallerAdmin(ctx context.Context, principal model.Principal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isAdminCalls++
	return s.isAdmin[principal], nil
}

func (s *stubBackend) GetCallerUserRole(ctx context.Context, principal model.Principal) (model.UserRole, error) {
	if s.isAdmin[principal] {
		return model.UserRoleAdmin, nil
	}
	return model.UserRoleUser, nil
}

func testMenu() []model.Dish {
	return []model.Dish{
		{ID: 1, Name: "Thali", Price: 500, Category: "Main Course", IsVeg: true, Available: true},
		{ID: 2, Name: "Naan", Price: 40, Category: "Breads", IsVeg: true, Available: true},
		{ID: 3, Name: "Old Special", Price: 300, Category: "Main Course", Available: false},
	}
}

func TestAddToCart_ResolvesDishFromMenu(t *testing.T) {
	b := &stubBackend{dishes: testMenu()}
	svc := New(b, zap.NewNop())

	if err := svc.AddToCart(context.Background(), 1); err != nil {
		t.Fatalf("AddToCart error: %v", err)
	}

	view := svc.Cart()
	if len(view.Lines) != 1 || view.Lines[0].Name != "Thali" {
		t.Fatalf("unexpected cart: %+v", view.Lines)
	}
	if view.Subtotal != 500 {
		t.Fatalf("subtotal = %d, want 500", view.Subtotal)
	}
}

func TestAddToCart_UnknownAndUnavailable(t *testing.T) {
	b := &stubBackend{dishes: testMenu()}
	svc := New(b, zap.NewNop())

	if err := svc.AddToCart(context.Background(), 99); !errors.Is(err, ErrDishNotFound) {
		t.Fatalf("err = %v, want ErrDishNotFound", err)
	}
	if err := svc.AddToCart(context.Background(), 3); !errors.Is(err, ErrDishUnavailable) {
		t.Fatalf("err = %v, want ErrDishUnavailable", err)
	}
	if svc.Cart().TotalItems != 0 {
		t.Fatalf("cart not empty after rejected adds")
	}
}

func TestApplyCoupon_Success(t *testing.T) {
	b := &stubBackend{
		dishes: testMenu(),
		coupon: &model.Coupon{Code: "SWAD10", Discount: 10},
	}
	svc := New(b, zap.NewNop())

	if err := svc.AddToCart(context.Background(), 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	coupon, err := svc.ApplyCoupon(context.Background(), "  swad10 ")
	if err != nil {
		t.Fatalf("ApplyCoupon error: %v", err)
	}
	if coupon.Code != "SWAD10" {
		t.Fatalf("coupon code = %q, want SWAD10 (normalized)", coupon.Code)
	}

	view := svc.Cart()
	if view.Discount != 50 || view.Total != 450 {
		t.Fatalf("discount/total = %d/%d, want 50/450", view.Discount, view.Total)
	}
}

func TestApplyCoupon_NotFoundVsTransportError(t *testing.T) {
	b := &stubBackend{dishes: testMenu()}
	svc := New(b, zap.NewNop())

	if _, err := svc.ApplyCoupon(context.Background(), "NOPE99"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("err = %v, want ErrCouponNotFound for negative answer", err)
	}

	b.mu.Lock()
	b.couponErr = errors.New("network down")
	b.mu.Unlock()

	_, err := svc.ApplyCoupon(context.Background(), "NOPE99")
	if err == nil || errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("err = %v, want transport error distinct from not-found", err)
	}
}

func TestApplyCoupon_MalformedCodeSkipsRemoteCall(t *testing.T) {
	b := &stubBackend{dishes: testMenu()}
	svc := New(b, zap.NewNop())

	if _, err := svc.ApplyCoupon(context.Background(), "a!"); !errors.Is(err, ErrCouponInvalid) {
		t.Fatalf("err = %v, want ErrCouponInvalid", err)
	}
	if b.couponCalls != 0 {
		t.Fatalf("remote validate called for malformed code")
	}
}

func TestCheckout_SuccessClearsCartAndRefreshesOrders(t *testing.T) {
	b := &stubBackend{dishes: testMenu(), placeOrderID: 42}
	svc := New(b, zap.NewNop())

	svc.Login("alice")
	if err := svc.AddToCart(context.Background(), 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	orderID, err := svc.Checkout(context.Background(), "UPI")
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if orderID != 42 {
		t.Fatalf("orderID = %d, want 42", orderID)
	}
	if svc.Cart().TotalItems != 0 {
		t.Fatalf("cart not cleared after checkout")
	}

	orders, err := svc.UserOrders(context.Background())
	if err != nil {
		t.Fatalf("UserOrders error: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != 42 {
		t.Fatalf("orders after checkout = %+v, want the new order", orders)
	}
}

func TestCheckout_FailureLeavesCartIntact(t *testing.T) {
	b := &stubBackend{
		dishes:        testMenu(),
		placeOrderErr: errors.New("network down"),
		coupon:        &model.Coupon{Code: "SWAD10", Discount: 10},
	}
	svc := New(b, zap.NewNop())

	svc.Login("alice")
	if err := svc.AddToCart(context.Background(), 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if _, err := svc.ApplyCoupon(context.Background(), "SWAD10"); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}

	before := svc.Cart()

	if _, err := svc.Checkout(context.Background(), "UPI"); err == nil {
		t.Fatalf("expected checkout failure")
	}

	after := svc.Cart()
	if len(after.Lines) != len(before.Lines) || after.Total != before.Total || after.CouponCode != before.CouponCode {
		t.Fatalf("cart changed after failed checkout:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestCheckout_RequiresIdentity(t *testing.T) {
	b := &stubBackend{dishes: testMenu()}
	svc := New(b, zap.NewNop())

	if err := svc.AddToCart(context.Background(), 1); err != nil {
		t.Fatalf("AddToCart: %v", err)
	}

	_, err := svc.Checkout(context.Background(), "UPI")
	if !errors.Is(err, checkout.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if b.placeCalls != 0 {
		t.Fatalf("remote call made for unauthenticated checkout")
	}
}

func TestUserOrders_GatedUntilLogin(t *testing.T) {
	b := &stubBackend{}
	svc := New(b, zap.NewNop())

	if _, err := svc.UserOrders(context.Background()); !errors.Is(err, store.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady before identity resolution", err)
	}

	svc.Login("alice")
	if _, err := svc.UserOrders(context.Background()); err != nil {
		t.Fatalf("UserOrders after login: %v", err)
	}
}

func TestUpdateOrderStatus_DeliveredCountGrowsByOne(t *testing.T) {
	b := &stubBackend{
		isAdmin: map[model.Principal]bool{"admin": true},
		allOrders: []model.Order{
			{ID: 42, User: "alice", TotalAmount: 450, Status: string(model.OrderStatusPending)},
			{ID: 43, User: "bob", TotalAmount: 300, Status: string(model.OrderStatusDelivered)},
		},
	}
	svc := New(b, zap.NewNop())
	svc.Login("admin")

	orders, err := svc.AllOrders(context.Background())
	if err != nil {
		t.Fatalf("AllOrders: %v", err)
	}
	before := admin.CountByStatus(orders).Delivered

	if err := svc.UpdateOrderStatus(context.Background(), 42, string(model.OrderStatusDelivered)); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}

	orders, err = svc.AllOrders(context.Background())
	if err != nil {
		t.Fatalf("AllOrders after update: %v", err)
	}
	after := admin.CountByStatus(orders).Delivered

	if after != before+1 {
		t.Fatalf("delivered count = %d, want %d", after, before+1)
	}
	for _, o := range orders {
		if o.ID == 42 && o.Status != string(model.OrderStatusDelivered) {
			t.Fatalf("order 42 status = %q, want Delivered after invalidation", o.Status)
		}
	}
}

func TestUpdateOrderStatus_RequiresAdmin(t *testing.T) {
	b := &stubBackend{isAdmin: map[model.Principal]bool{}}
	svc := New(b, zap.NewNop())
	svc.Login("alice")

	err := svc.UpdateOrderStatus(context.Background(), 42, string(model.OrderStatusDelivered))
	if !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}
}

func TestIsAdmin_NotServedAcrossIdentityChange(t *testing.T) {
	b := &stubBackend{isAdmin: map[model.Principal]bool{"alice": true}}
	svc := New(b, zap.NewNop())

	svc.Login("alice")
	isAdmin, err := svc.IsAdmin(context.Background())
	if err != nil || !isAdmin {
		t.Fatalf("IsAdmin(alice) = (%v, %v), want (true, nil)", isAdmin, err)
	}

	svc.Logout()

	// Для новой (пустой) идентичности требуется свежая загрузка: ответ
	// алисы из кэша недостижим.
	isAdmin, err = svc.IsAdmin(context.Background())
	if err != nil {
		t.Fatalf("IsAdmin after logout: %v", err)
	}
	if isAdmin {
		t.Fatalf("stale isAdmin served after identity change")
	}
	if b.isAdminCalls != 2 {
		t.Fatalf("isAdmin fetches = %d, want 2", b.isAdminCalls)
	}

	svc.Login("alice")
	isAdmin, err = svc.IsAdmin(context.Background())
	if err != nil || !isAdmin {
		t.Fatalf("IsAdmin after re-login = (%v, %v), want (true, nil)", isAdmin, err)
	}
}

func TestProfile_NilMeansAbsent(t *testing.T) {
	b := &stubBackend{}
	svc := New(b, zap.NewNop())
	svc.Login("alice")

	profile, err := svc.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile error: %v", err)
	}
	if profile != nil {
		t.Fatalf("profile = %+v, want nil for absent profile", profile)
	}
}

func TestDishesByCategory_RegistersParameterizedKey(t *testing.T) {
	b := &stubBackend{dishes: testMenu()}
	svc := New(b, zap.NewNop())

	breads, err := svc.DishesByCategory(context.Background(), "Breads")
	if err != nil {
		t.Fatalf("DishesByCategory: %v", err)
	}
	if len(breads) != 1 || breads[0].Name != "Naan" {
		t.Fatalf("breads = %+v, want [Naan]", breads)
	}

	mains, err := svc.DishesByCategory(context.Background(), "Main Course")
	if err != nil {
		t.Fatalf("DishesByCategory: %v", err)
	}
	if len(mains) != 2 {
		t.Fatalf("mains = %d dishes, want 2", len(mains))
	}
}
