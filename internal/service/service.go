// Package service реализует фасад клиентской сессии: единственную точку
// доступа представлений к корзине, кэшу запросов и бэкенду.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/swad-client/internal/cart"
	"github.com/mmeshcher/swad-client/internal/checkout"
	"github.com/mmeshcher/swad-client/internal/identity"
	"github.com/mmeshcher/swad-client/internal/model"
	"github.com/mmeshcher/swad-client/internal/store"
	"github.com/mmeshcher/swad-client/internal/validation"
)

// Ошибки уровня сессии.
var (
	ErrDishNotFound    = errors.New("dish not found in menu")
	ErrDishUnavailable = errors.New("dish is not available")
	ErrCouponInvalid   = errors.New("coupon code is malformed")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrNotAdmin        = errors.New("caller is not an admin")
)

// Семейства ключей кэша. Инвалидация по семейству накрывает все
// параметризации ресурса разом.
const (
	familyDishes       = "dishes"
	familyOrders       = "orders"
	familyReservations = "reservations"
	familyReviews      = "reviews"
	familyCoupons      = "coupons"
	familyProfile      = "profile"
	familyRoles        = "roles"
)

// anonParam подставляется в идентичностные ключи, пока пользователь
// не вошёл: разлогиненная сессия не должна видеть чужие записи кэша.
const anonParam = "anonymous"

// Backend описывает потребляемую поверхность удалённого бэкенда ресторана.
type Backend interface {
	GetAllDishes(ctx context.Context) ([]model.Dish, error)
	GetDishesByCategory(ctx context.Context, category string) ([]model.Dish, error)
	GetVegDishes(ctx context.Context) ([]model.Dish, error)
	AddDish(ctx context.Context, principal model.Principal, dish model.Dish) (int64, error)
	EditDish(ctx context.Context, principal model.Principal, dish model.Dish) error
	DeleteDish(ctx context.Context, principal model.Principal, id int64) error
	PlaceOrder(ctx context.Context, principal model.Principal, items []model.OrderItem, totalAmount int64, paymentMethod string) (int64, error)
	GetUserOrders(ctx context.Context, principal model.Principal) ([]model.Order, error)
	GetAllOrders(ctx context.Context, principal model.Principal) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, principal model.Principal, orderID int64, status string) error
	MakeReservation(ctx context.Context, principal model.Principal, name, phone, date, timeSlot string, guests int64) (int64, error)
	GetUserReservations(ctx context.Context, principal model.Principal) ([]model.Reservation, error)
	SubmitReview(ctx context.Context, principal model.Principal, rating int64, comment string) error
	GetAllReviews(ctx context.Context) ([]model.Review, error)
	AddCoupon(ctx context.Context, principal model.Principal, code string, discount int64) error
	ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error)
	GetCallerUserProfile(ctx context.Context, principal model.Principal) (*model.UserProfile, error)
	SaveCallerUserProfile(ctx context.Context, principal model.Principal, profile model.UserProfile) error
	IsCallerAdmin(ctx context.Context, principal model.Principal) (bool, error)
	GetCallerUserRole(ctx context.Context, principal model.Principal) (model.UserRole, error)
}

// Service владеет состоянием клиентской сессии: шлюзом идентичности,
// корзиной, кэшем запросов и протоколом оформления. Создаётся при старте
// сессии и живёт до её завершения.
type Service struct {
	logger  *zap.Logger
	backend Backend
	gate    *identity.Gate
	store   *store.Store

	cartMu   sync.Mutex
	cart     *cart.Engine
	checkout *checkout.Protocol
}

// lockedCart сериализует доступ протокола оформления к корзине сессии.
type lockedCart struct {
	mu *sync.Mutex
	e  *cart.Engine
}

func (lc lockedCart) Len() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.e.Len()
}

func (lc lockedCart) Snapshot() cart.Snapshot {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.e.Snapshot()
}

func (lc lockedCart) Clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.e.Clear()
}

// New создаёт фасад сессии поверх указанного бэкенда.
func New(backend Backend, logger *zap.Logger) *Service {
	s := &Service{
		logger:  logger,
		backend: backend,
		gate:    identity.NewGate(),
		store:   store.New(logger),
		cart:    cart.New(),
	}
	s.checkout = checkout.New(
		s.gate,
		lockedCart{mu: &s.cartMu, e: s.cart},
		backend,
		s.store,
	)
	s.registerSharedQueries()
	return s
}

// Gate возвращает шлюз идентичности сессии.
func (s *Service) Gate() *identity.Gate { return s.gate }

// Store возвращает слой кэшированных запросов сессии.
func (s *Service) Store() *store.Store { return s.store }

// registerSharedQueries регистрирует запросы, не зависящие от идентичности.
func (s *Service) registerSharedQueries() {
	s.store.Register(store.NewKey(familyDishes), func(ctx context.Context) (any, error) {
		return s.backend.GetAllDishes(ctx)
	}, store.Options{})
	s.store.Register(store.NewKey(familyDishes, "veg"), func(ctx context.Context) (any, error) {
		return s.backend.GetVegDishes(ctx)
	}, store.Options{})
	s.store.Register(store.NewKey(familyReviews), func(ctx context.Context) (any, error) {
		return s.backend.GetAllReviews(ctx)
	}, store.Options{})
}

// principalParam возвращает компонент ключа, привязывающий запись кэша к
// текущей идентичности. Смена идентичности адресует другие записи, поэтому
// новый вход никогда не видит закэшированный ответ предыдущего.
func (s *Service) principalParam() string {
	p, loggedIn := s.gate.Current()
	if !loggedIn {
		return anonParam
	}
	return string(p)
}

// Login разрешает идентичность сессии. Пустой принципал означает гостевой
// вход: ему генерируется новый уникальный идентификатор.
func (s *Service) Login(principal model.Principal) model.Principal {
	if principal == "" {
		principal = model.Principal(uuid.NewString())
	}
	s.gate.Resolve(principal)
	s.logger.Info("identity resolved", zap.String("principal", string(principal)))
	return principal
}

// CurrentPrincipal возвращает текущую идентичность сессии.
func (s *Service) CurrentPrincipal() (model.Principal, bool) {
	return s.gate.Current()
}

// Logout сбрасывает идентичность сессии. Записи кэша предыдущего
// пользователя остаются под его ключами и недостижимы для новой идентичности.
func (s *Service) Logout() {
	s.gate.Clear()
	s.logger.Info("identity cleared")
}

// ─── Чтения через кэш ────────────────────────────────────────────────────

// Dishes возвращает полное меню.
func (s *Service) Dishes(ctx context.Context) ([]model.Dish, error) {
	return store.GetAs[[]model.Dish](ctx, s.store, store.NewKey(familyDishes))
}

// DishesByCategory возвращает блюда категории.
func (s *Service) DishesByCategory(ctx context.Context, category string) ([]model.Dish, error) {
	key := store.NewKey(familyDishes, "category", category)
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.GetDishesByCategory(ctx, category)
	}, store.Options{})
	return store.GetAs[[]model.Dish](ctx, s.store, key)
}

// VegDishes возвращает вегетарианские блюда.
func (s *Service) VegDishes(ctx context.Context) ([]model.Dish, error) {
	return store.GetAs[[]model.Dish](ctx, s.store, store.NewKey(familyDishes, "veg"))
}

// UserOrders возвращает заказы текущего пользователя.
func (s *Service) UserOrders(ctx context.Context) ([]model.Order, error) {
	principal, _ := s.gate.Current()
	key := store.NewKey(familyOrders, "user", s.principalParam())
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.GetUserOrders(ctx, principal)
	}, store.Options{Gate: s.loggedInGate()})
	return store.GetAs[[]model.Order](ctx, s.store, key)
}

// AllOrders возвращает все заказы для панели администратора.
func (s *Service) AllOrders(ctx context.Context) ([]model.Order, error) {
	principal, _ := s.gate.Current()
	key := store.NewKey(familyOrders, "all", s.principalParam())
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.GetAllOrders(ctx, principal)
	}, store.Options{Gate: s.loggedInGate()})
	return store.GetAs[[]model.Order](ctx, s.store, key)
}

// UserReservations возвращает бронирования текущего пользователя.
func (s *Service) UserReservations(ctx context.Context) ([]model.Reservation, error) {
	principal, _ := s.gate.Current()
	key := store.NewKey(familyReservations, "user", s.principalParam())
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.GetUserReservations(ctx, principal)
	}, store.Options{Gate: s.loggedInGate()})
	return store.GetAs[[]model.Reservation](ctx, s.store, key)
}

// Reviews возвращает все отзывы.
func (s *Service) Reviews(ctx context.Context) ([]model.Review, error) {
	return store.GetAs[[]model.Review](ctx, s.store, store.NewKey(familyReviews))
}

// Profile возвращает профиль текущего пользователя либо nil, если профиль
// ещё не создан. Запрос не повторяется автоматически после ошибки:
// "профиля нет" и "запрос не удался" различаются вызывающей стороной.
func (s *Service) Profile(ctx context.Context) (*model.UserProfile, error) {
	principal, _ := s.gate.Current()
	key := store.NewKey(familyProfile, s.principalParam())
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.GetCallerUserProfile(ctx, principal)
	}, store.Options{Gate: s.loggedInGate(), NoRetry: true})
	return store.GetAs[*model.UserProfile](ctx, s.store, key)
}

// IsAdmin сообщает, является ли текущая идентичность администратором.
// Ключ включает идентичность: признак никогда не отдаётся из кэша
// предыдущего пользователя.
func (s *Service) IsAdmin(ctx context.Context) (bool, error) {
	principal, _ := s.gate.Current()
	key := store.NewKey(familyRoles, "admin", s.principalParam())
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.IsCallerAdmin(ctx, principal)
	}, store.Options{Gate: s.gate.Resolved})
	return store.GetAs[bool](ctx, s.store, key)
}

// Role возвращает роль текущей идентичности.
func (s *Service) Role(ctx context.Context) (model.UserRole, error) {
	principal, _ := s.gate.Current()
	key := store.NewKey(familyRoles, "current", s.principalParam())
	s.store.Register(key, func(ctx context.Context) (any, error) {
		return s.backend.GetCallerUserRole(ctx, principal)
	}, store.Options{Gate: s.gate.Resolved})
	return store.GetAs[model.UserRole](ctx, s.store, key)
}

func (s *Service) loggedInGate() func() bool {
	return func() bool {
		_, loggedIn := s.gate.Current()
		return s.gate.Resolved() && loggedIn
	}
}

// ─── Корзина ─────────────────────────────────────────────────────────────

// CartView — представление корзины для UI: позиции и производные суммы.
type CartView struct {
	Lines      []cart.Line
	Subtotal   int64
	Discount   int64
	Total      int64
	CouponCode string
	TotalItems int64
}

// Cart возвращает текущее представление корзины.
func (s *Service) Cart() CartView {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	code, _ := s.cart.Coupon()
	return CartView{
		Lines:      s.cart.Lines(),
		Subtotal:   s.cart.Subtotal(),
		Discount:   s.cart.DiscountAmount(),
		Total:      s.cart.Total(),
		CouponCode: code,
		TotalItems: s.cart.TotalItems(),
	}
}

// AddToCart добавляет блюдо из меню в корзину.
func (s *Service) AddToCart(ctx context.Context, dishID int64) error {
	dishes, err := s.Dishes(ctx)
	if err != nil {
		return fmt.Errorf("load menu: %w", err)
	}
	for _, d := range dishes {
		if d.ID != dishID {
			continue
		}
		if !d.Available {
			return ErrDishUnavailable
		}
		s.cartMu.Lock()
		s.cart.AddLine(d)
		s.cartMu.Unlock()
		return nil
	}
	return ErrDishNotFound
}

// SetCartQuantity устанавливает количество позиции корзины.
func (s *Service) SetCartQuantity(dishID, quantity int64) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	s.cart.SetQuantity(dishID, quantity)
}

// RemoveFromCart удаляет позицию корзины.
func (s *Service) RemoveFromCart(dishID int64) {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	s.cart.RemoveLine(dishID)
}

// ApplyCoupon проверяет код на бэкенде и применяет найденный купон к
// корзине. Отсутствие купона — ErrCouponNotFound, а не транспортная ошибка.
func (s *Service) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validation.IsValidCouponCode(code) {
		return nil, ErrCouponInvalid
	}

	coupon, err := s.backend.ValidateCoupon(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("validate coupon: %w", err)
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	s.cartMu.Lock()
	s.cart.ApplyCoupon(coupon.Code, coupon.Discount)
	s.cartMu.Unlock()
	return coupon, nil
}

// RemoveCoupon сбрасывает купон корзины.
func (s *Service) RemoveCoupon() {
	s.cartMu.Lock()
	defer s.cartMu.Unlock()
	s.cart.ClearCoupon()
}

// Checkout отправляет корзину на бэкенд через протокол оформления.
func (s *Service) Checkout(ctx context.Context, paymentMethod string) (int64, error) {
	return s.checkout.Submit(ctx, paymentMethod)
}

// ─── Мутации ─────────────────────────────────────────────────────────────
// Мутации идут напрямую на бэкенд и после успеха инвалидируют семейство
// записей кэша целиком; оптимистичных записей в кэш нет.

func (s *Service) requireAdmin(ctx context.Context) (model.Principal, error) {
	isAdmin, err := s.IsAdmin(ctx)
	if err != nil {
		return "", fmt.Errorf("check admin: %w", err)
	}
	if !isAdmin {
		return "", ErrNotAdmin
	}
	principal, _ := s.gate.Current()
	return principal, nil
}

// AddDish создаёт блюдо и инвалидирует кэш меню.
func (s *Service) AddDish(ctx context.Context, dish model.Dish) (int64, error) {
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return 0, err
	}
	id, err := s.backend.AddDish(ctx, principal, dish)
	if err != nil {
		return 0, fmt.Errorf("add dish: %w", err)
	}
	s.store.InvalidateFamily(familyDishes)
	return id, nil
}

// EditDish изменяет блюдо и инвалидирует кэш меню.
func (s *Service) EditDish(ctx context.Context, dish model.Dish) error {
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.EditDish(ctx, principal, dish); err != nil {
		return fmt.Errorf("edit dish: %w", err)
	}
	s.store.InvalidateFamily(familyDishes)
	return nil
}

// DeleteDish удаляет блюдо и инвалидирует кэш меню.
func (s *Service) DeleteDish(ctx context.Context, id int64) error {
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteDish(ctx, principal, id); err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	s.store.InvalidateFamily(familyDishes)
	return nil
}

// UpdateOrderStatus меняет статус заказа и инвалидирует кэш заказов, чтобы
// новый статус увидели все потребители списков заказов.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.UpdateOrderStatus(ctx, principal, orderID, status); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	s.store.InvalidateFamily(familyOrders)
	return nil
}

// AddCoupon создаёт купон.
func (s *Service) AddCoupon(ctx context.Context, code string, discount int64) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validation.IsValidCouponCode(code) {
		return ErrCouponInvalid
	}
	if discount < 0 || discount > 100 {
		return ErrCouponInvalid
	}
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.AddCoupon(ctx, principal, code, discount); err != nil {
		return fmt.Errorf("add coupon: %w", err)
	}
	s.store.InvalidateFamily(familyCoupons)
	return nil
}

// MakeReservation создаёт бронирование и инвалидирует кэш бронирований.
func (s *Service) MakeReservation(ctx context.Context, name, phone, date, timeSlot string, guests int64) (int64, error) {
	principal, loggedIn := s.gate.Current()
	if !loggedIn {
		return 0, checkout.ErrNotAuthenticated
	}
	if !validation.IsValidGuests(guests) || !validation.IsValidPhone(phone) {
		return 0, fmt.Errorf("invalid reservation parameters")
	}
	id, err := s.backend.MakeReservation(ctx, principal, name, phone, date, timeSlot, guests)
	if err != nil {
		return 0, fmt.Errorf("make reservation: %w", err)
	}
	s.store.InvalidateFamily(familyReservations)
	return id, nil
}

// SubmitReview отправляет отзыв и инвалидирует кэш отзывов.
func (s *Service) SubmitReview(ctx context.Context, rating int64, comment string) error {
	principal, loggedIn := s.gate.Current()
	if !loggedIn {
		return checkout.ErrNotAuthenticated
	}
	if !validation.IsValidRating(rating) {
		return fmt.Errorf("invalid rating")
	}
	if err := s.backend.SubmitReview(ctx, principal, rating, comment); err != nil {
		return fmt.Errorf("submit review: %w", err)
	}
	s.store.InvalidateFamily(familyReviews)
	return nil
}

// SaveProfile сохраняет профиль пользователя и инвалидирует кэш профиля.
func (s *Service) SaveProfile(ctx context.Context, profile model.UserProfile) error {
	principal, loggedIn := s.gate.Current()
	if !loggedIn {
		return checkout.ErrNotAuthenticated
	}
	if err := s.backend.SaveCallerUserProfile(ctx, principal, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	s.store.InvalidateFamily(familyProfile)
	return nil
}
