// Package handler содержит HTTP-обработчики управляющей поверхности клиента Swad.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/swad-client/internal/admin"
	"github.com/mmeshcher/swad-client/internal/checkout"
	"github.com/mmeshcher/swad-client/internal/middleware"
	"github.com/mmeshcher/swad-client/internal/model"
	"github.com/mmeshcher/swad-client/internal/service"
	"github.com/mmeshcher/swad-client/internal/store"
)

// Service определяет контракт фасада сессии, используемый HTTP-обработчиками.
type Service interface {
	Login(principal model.Principal) model.Principal
	Logout()
	CurrentPrincipal() (model.Principal, bool)

	Dishes(ctx context.Context) ([]model.Dish, error)
	DishesByCategory(ctx context.Context, category string) ([]model.Dish, error)
	VegDishes(ctx context.Context) ([]model.Dish, error)
	UserOrders(ctx context.Context) ([]model.Order, error)
	AllOrders(ctx context.Context) ([]model.Order, error)
	UserReservations(ctx context.Context) ([]model.Reservation, error)
	Reviews(ctx context.Context) ([]model.Review, error)
	Profile(ctx context.Context) (*model.UserProfile, error)
	IsAdmin(ctx context.Context) (bool, error)

	Cart() service.CartView
	AddToCart(ctx context.Context, dishID int64) error
	SetCartQuantity(dishID, quantity int64)
	RemoveFromCart(dishID int64)
	ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error)
	RemoveCoupon()
	Checkout(ctx context.Context, paymentMethod string) (int64, error)

	AddDish(ctx context.Context, dish model.Dish) (int64, error)
	EditDish(ctx context.Context, dish model.Dish) error
	DeleteDish(ctx context.Context, id int64) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	AddCoupon(ctx context.Context, code string, discount int64) error
	MakeReservation(ctx context.Context, name, phone, date, timeSlot string, guests int64) (int64, error)
	SubmitReview(ctx context.Context, rating int64, comment string) error
	SaveProfile(ctx context.Context, profile model.UserProfile) error
}

// Handler реализует HTTP-обработчики управляющей поверхности.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeJSON сериализует ответ; ошибки кодирования переводятся в 500.
func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// remoteError переводит ошибку чтения/мутации в HTTP-статус: контрактные
// ошибки — 4xx, сбои удалённого бэкенда — 502.
func (h *Handler) remoteError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, checkout.ErrNotAuthenticated), errors.Is(err, store.ErrNotReady):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, service.ErrNotAdmin):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	default:
		h.logger.Error(action, zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}

// ─── Сессия ──────────────────────────────────────────────────────────────

type loginRequest struct {
	Principal string `json:"principal"`
}

type loginResponse struct {
	Principal string `json:"principal"`
}

// Login разрешает идентичность сессии и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	principal := h.service.Login(model.Principal(req.Principal))
	h.authMiddleware.SetAuthCookie(w, principal)
	h.writeJSON(w, loginResponse{Principal: string(principal)})
}

// Logout сбрасывает идентичность сессии и удаляет cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout()
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

// sessionGuard отклоняет запросы, чей cookie не совпадает с текущей
// идентичностью сессии: устаревший cookie не должен действовать после
// смены пользователя.
func (h *Handler) sessionGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookiePrincipal, ok := middleware.GetPrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		current, loggedIn := h.service.CurrentPrincipal()
		if !loggedIn || current != cookiePrincipal {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Меню ────────────────────────────────────────────────────────────────

// GetMenu возвращает полное меню.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	dishes, err := h.service.Dishes(r.Context())
	if err != nil {
		h.remoteError(w, "get menu error", err)
		return
	}
	h.writeJSON(w, dishes)
}

// GetMenuByCategory возвращает блюда категории.
func (h *Handler) GetMenuByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	dishes, err := h.service.DishesByCategory(r.Context(), category)
	if err != nil {
		h.remoteError(w, "get menu by category error", err)
		return
	}
	h.writeJSON(w, dishes)
}

// GetVegMenu возвращает вегетарианские блюда.
func (h *Handler) GetVegMenu(w http.ResponseWriter, r *http.Request) {
	dishes, err := h.service.VegDishes(r.Context())
	if err != nil {
		h.remoteError(w, "get veg menu error", err)
		return
	}
	h.writeJSON(w, dishes)
}

// ─── Корзина ─────────────────────────────────────────────────────────────

type cartLineResponse struct {
	DishID    int64  `json:"dishId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int64  `json:"quantity"`
}

type cartResponse struct {
	Lines      []cartLineResponse `json:"lines"`
	Subtotal   int64              `json:"subtotal"`
	Discount   int64              `json:"discount"`
	Total      int64              `json:"total"`
	CouponCode string             `json:"couponCode,omitempty"`
	TotalItems int64              `json:"totalItems"`
}

// GetCart возвращает текущее состояние корзины с производными суммами.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view := h.service.Cart()
	resp := cartResponse{
		Lines:      make([]cartLineResponse, 0, len(view.Lines)),
		Subtotal:   view.Subtotal,
		Discount:   view.Discount,
		Total:      view.Total,
		CouponCode: view.CouponCode,
		TotalItems: view.TotalItems,
	}
	for _, l := range view.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			DishID:    l.DishID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}
	h.writeJSON(w, resp)
}

type addCartItemRequest struct {
	DishID int64 `json:"dishId"`
}

// AddCartItem добавляет блюдо в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.AddToCart(r.Context(), req.DishID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDishNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrDishUnavailable):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.remoteError(w, "add cart item error", err)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

type setQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

// SetCartItemQuantity устанавливает количество позиции корзины.
func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	dishID, err := strconv.ParseInt(chi.URLParam(r, "dishID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.service.SetCartQuantity(dishID, req.Quantity)
	w.WriteHeader(http.StatusOK)
}

// RemoveCartItem удаляет позицию корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	dishID, err := strconv.ParseInt(chi.URLParam(r, "dishID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.service.RemoveFromCart(dishID)
	w.WriteHeader(http.StatusOK)
}

type couponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon проверяет код купона и применяет скидку к корзине.
// Отсутствие купона — отрицательный ответ 404, а не сбой.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	coupon, err := h.service.ApplyCoupon(r.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCouponInvalid):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrCouponNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.remoteError(w, "apply coupon error", err)
		}
		return
	}
	h.writeJSON(w, coupon)
}

// RemoveCoupon сбрасывает купон корзины.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.service.RemoveCoupon()
	w.WriteHeader(http.StatusOK)
}

// ─── Оформление заказа ───────────────────────────────────────────────────

type checkoutRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type checkoutResponse struct {
	OrderID int64 `json:"orderId"`
}

// Checkout отправляет корзину на бэкенд. Неудача оставляет корзину
// нетронутой, повторная отправка во время полёта отклоняется.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "UPI"
	}

	orderID, err := h.service.Checkout(r.Context(), req.PaymentMethod)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrNotAuthenticated):
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		case errors.Is(err, checkout.ErrEmptyCart):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, checkout.ErrInFlight):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("checkout error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
		return
	}
	h.writeJSON(w, checkoutResponse{OrderID: orderID})
}

// ─── Заказы, бронирования, отзывы, профиль ───────────────────────────────

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.UserOrders(r.Context())
	if err != nil {
		h.remoteError(w, "get orders error", err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, orders)
}

// GetReservations возвращает бронирования текущего пользователя.
func (h *Handler) GetReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.service.UserReservations(r.Context())
	if err != nil {
		h.remoteError(w, "get reservations error", err)
		return
	}
	if len(reservations) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, reservations)
}

type reservationRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Guests int64  `json:"guests"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

// MakeReservation создаёт бронирование столика.
func (h *Handler) MakeReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.MakeReservation(r.Context(), req.Name, req.Phone, req.Date, req.Time, req.Guests)
	if err != nil {
		if errors.Is(err, checkout.ErrNotAuthenticated) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.remoteError(w, "make reservation error", err)
		return
	}
	h.writeJSON(w, idResponse{ID: id})
}

// GetReviews возвращает все отзывы.
func (h *Handler) GetReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.Reviews(r.Context())
	if err != nil {
		h.remoteError(w, "get reviews error", err)
		return
	}
	h.writeJSON(w, reviews)
}

type reviewRequest struct {
	Rating  int64  `json:"rating"`
	Comment string `json:"comment"`
}

// SubmitReview отправляет отзыв текущего пользователя.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SubmitReview(r.Context(), req.Rating, req.Comment); err != nil {
		h.remoteError(w, "submit review error", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetProfile возвращает профиль текущего пользователя; 204, если профиль
// ещё не создан.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context())
	if err != nil {
		h.remoteError(w, "get profile error", err)
		return
	}
	if profile == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, profile)
}

// SaveProfile сохраняет профиль текущего пользователя.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile model.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SaveProfile(r.Context(), profile); err != nil {
		h.remoteError(w, "save profile error", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ─── Администрирование ───────────────────────────────────────────────────

// adminGuard пропускает только администраторов; признак берётся из кэша,
// ключ которого включает текущую идентичность.
func (h *Handler) adminGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isAdmin, err := h.service.IsAdmin(r.Context())
		if err != nil {
			h.remoteError(w, "admin check error", err)
			return
		}
		if !isAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetAllOrders возвращает все заказы для панели администратора.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.AllOrders(r.Context())
	if err != nil {
		h.remoteError(w, "get all orders error", err)
		return
	}
	h.writeJSON(w, orders)
}

type dateBucketResponse struct {
	Date    string        `json:"date"`
	Revenue int64         `json:"revenue"`
	Orders  []model.Order `json:"orders"`
}

type reportResponse struct {
	TotalRevenue   int64                `json:"totalRevenue"`
	DeliveredCount int                  `json:"deliveredCount"`
	PendingCount   int                  `json:"pendingCount"`
	ByDate         []dateBucketResponse `json:"byDate"`
}

// GetReport возвращает сводку выручки, вычисленную из кэша заказов.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.AllOrders(r.Context())
	if err != nil {
		h.remoteError(w, "get report error", err)
		return
	}

	report := admin.BuildReport(orders)
	resp := reportResponse{
		TotalRevenue:   report.TotalRevenue,
		DeliveredCount: report.Counts.Delivered,
		PendingCount:   report.Counts.Pending,
		ByDate:         make([]dateBucketResponse, 0, len(report.ByDate)),
	}
	for _, b := range report.ByDate {
		resp.ByDate = append(resp.ByDate, dateBucketResponse{
			Date:    b.Day.Format(time.DateOnly),
			Revenue: b.Revenue,
			Orders:  b.Orders,
		})
	}
	h.writeJSON(w, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus меняет статус заказа.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), orderID, req.Status); err != nil {
		h.remoteError(w, "update order status error", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// AddDish создаёт блюдо меню.
func (h *Handler) AddDish(w http.ResponseWriter, r *http.Request) {
	var dish model.Dish
	if err := json.NewDecoder(r.Body).Decode(&dish); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if dish.Name == "" || dish.Price <= 0 {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	id, err := h.service.AddDish(r.Context(), dish)
	if err != nil {
		h.remoteError(w, "add dish error", err)
		return
	}
	h.writeJSON(w, idResponse{ID: id})
}

// EditDish изменяет блюдо меню.
func (h *Handler) EditDish(w http.ResponseWriter, r *http.Request) {
	dishID, err := strconv.ParseInt(chi.URLParam(r, "dishID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var dish model.Dish
	if err := json.NewDecoder(r.Body).Decode(&dish); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	dish.ID = dishID

	if err := h.service.EditDish(r.Context(), dish); err != nil {
		h.remoteError(w, "edit dish error", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteDish удаляет блюдо меню.
func (h *Handler) DeleteDish(w http.ResponseWriter, r *http.Request) {
	dishID, err := strconv.ParseInt(chi.URLParam(r, "dishID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteDish(r.Context(), dishID); err != nil {
		h.remoteError(w, "delete dish error", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type addCouponRequest struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

// AddCoupon создаёт скидочный купон.
func (h *Handler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	var req addCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.AddCoupon(r.Context(), req.Code, req.Discount); err != nil {
		if errors.Is(err, service.ErrCouponInvalid) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.remoteError(w, "add coupon error", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
