// Package backend предоставляет клиент удалённого транзакционного бэкенда
// ресторана: каталог блюд, заказы, бронирования, отзывы, купоны и роли.
// Все вызовы асинхронны относительно сессии, могут завершиться сетевой
// ошибкой и не повторяются автоматически.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmeshcher/swad-client/internal/model"
)

// principalHeader передаёт непрозрачный принципал вызывающего пользователя.
const principalHeader = "X-Swad-Principal"

// ErrNotFound сообщает, что ресурс отсутствует на бэкенде. Для валидирующих
// запросов (купон, профиль) это отрицательный ответ, а не сбой.
var ErrNotFound = errors.New("resource not found")

// Client инкапсулирует HTTP-взаимодействие с бэкендом ресторана.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент бэкенда по указанному адресу.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) endpoint(path string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("backend client not configured")
	}
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + path, nil
}

// do выполняет запрос и декодирует успешный ответ в out (если out != nil).
// Возвращает HTTP-статус; транспортные ошибки оборачиваются и отдаются
// вызывающему без повторов.
func (c *Client) do(ctx context.Context, method, path string, principal model.Principal, in, out any) (int, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return 0, err
	}

	var body *bytes.Buffer
	if in != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
	}

	var req *http.Request
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	}
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != "" {
		req.Header.Set(principalHeader, string(principal))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusNoContent {
		return resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type idResponse struct {
	ID int64 `json:"id"`
}

// GetAllDishes возвращает все блюда меню.
func (c *Client) GetAllDishes(ctx context.Context) ([]model.Dish, error) {
	var dishes []model.Dish
	if _, err := c.do(ctx, http.MethodGet, "/api/dishes", "", nil, &dishes); err != nil {
		return nil, fmt.Errorf("get dishes: %w", err)
	}
	return dishes, nil
}

// GetDishesByCategory возвращает блюда указанной категории.
func (c *Client) GetDishesByCategory(ctx context.Context, category string) ([]model.Dish, error) {
	var dishes []model.Dish
	path := "/api/dishes/category/" + url.PathEscape(category)
	if _, err := c.do(ctx, http.MethodGet, path, "", nil, &dishes); err != nil {
		return nil, fmt.Errorf("get dishes by category: %w", err)
	}
	return dishes, nil
}

// GetVegDishes возвращает вегетарианские блюда.
func (c *Client) GetVegDishes(ctx context.Context) ([]model.Dish, error) {
	var dishes []model.Dish
	if _, err := c.do(ctx, http.MethodGet, "/api/dishes/veg", "", nil, &dishes); err != nil {
		return nil, fmt.Errorf("get veg dishes: %w", err)
	}
	return dishes, nil
}

// AddDish создаёт новое блюдо и возвращает его идентификатор.
// Мутация доступна только администратору.
func (c *Client) AddDish(ctx context.Context, principal model.Principal, dish model.Dish) (int64, error) {
	var resp idResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/dishes", principal, dish, &resp); err != nil {
		return 0, fmt.Errorf("add dish: %w", err)
	}
	return resp.ID, nil
}

// EditDish изменяет существующее блюдо.
func (c *Client) EditDish(ctx context.Context, principal model.Principal, dish model.Dish) error {
	path := fmt.Sprintf("/api/dishes/%d", dish.ID)
	if _, err := c.do(ctx, http.MethodPut, path, principal, dish, nil); err != nil {
		return fmt.Errorf("edit dish: %w", err)
	}
	return nil
}

// DeleteDish удаляет блюдо из меню.
func (c *Client) DeleteDish(ctx context.Context, principal model.Principal, id int64) error {
	path := fmt.Sprintf("/api/dishes/%d", id)
	if _, err := c.do(ctx, http.MethodDelete, path, principal, nil, nil); err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	return nil
}

type placeOrderRequest struct {
	Items         []model.OrderItem `json:"items"`
	TotalAmount   int64             `json:"totalAmount"`
	PaymentMethod string            `json:"paymentMethod"`
}

// PlaceOrder отправляет снимок корзины и возвращает идентификатор заказа,
// назначенный бэкендом. Бэкенд не принимает ключ идемпотентности, поэтому
// вызывающая сторона не должна повторять вызов автоматически.
func (c *Client) PlaceOrder(ctx context.Context, principal model.Principal, items []model.OrderItem, totalAmount int64, paymentMethod string) (int64, error) {
	req := placeOrderRequest{
		Items:         items,
		TotalAmount:   totalAmount,
		PaymentMethod: paymentMethod,
	}
	var resp idResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/orders", principal, req, &resp); err != nil {
		return 0, fmt.Errorf("place order: %w", err)
	}
	return resp.ID, nil
}

// GetUserOrders возвращает заказы указанного пользователя.
func (c *Client) GetUserOrders(ctx context.Context, principal model.Principal) ([]model.Order, error) {
	var orders []model.Order
	path := "/api/orders/user/" + url.PathEscape(string(principal))
	if _, err := c.do(ctx, http.MethodGet, path, principal, nil, &orders); err != nil {
		return nil, fmt.Errorf("get user orders: %w", err)
	}
	return orders, nil
}

// GetAllOrders возвращает все заказы. Доступно только администратору.
func (c *Client) GetAllOrders(ctx context.Context, principal model.Principal) ([]model.Order, error) {
	var orders []model.Order
	if _, err := c.do(ctx, http.MethodGet, "/api/orders", principal, nil, &orders); err != nil {
		return nil, fmt.Errorf("get all orders: %w", err)
	}
	return orders, nil
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus меняет статус заказа. Доступно только администратору.
func (c *Client) UpdateOrderStatus(ctx context.Context, principal model.Principal, orderID int64, status string) error {
	path := fmt.Sprintf("/api/orders/%d/status", orderID)
	if _, err := c.do(ctx, http.MethodPut, path, principal, updateStatusRequest{Status: status}, nil); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

type reservationRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Guests int64  `json:"guests"`
}

// MakeReservation создаёт бронирование и возвращает его идентификатор.
func (c *Client) MakeReservation(ctx context.Context, principal model.Principal, name, phone, date, timeSlot string, guests int64) (int64, error) {
	req := reservationRequest{
		Name:   name,
		Phone:  phone,
		Date:   date,
		Time:   timeSlot,
		Guests: guests,
	}
	var resp idResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/reservations", principal, req, &resp); err != nil {
		return 0, fmt.Errorf("make reservation: %w", err)
	}
	return resp.ID, nil
}

// GetUserReservations возвращает бронирования указанного пользователя.
func (c *Client) GetUserReservations(ctx context.Context, principal model.Principal) ([]model.Reservation, error) {
	var reservations []model.Reservation
	path := "/api/reservations/user/" + url.PathEscape(string(principal))
	if _, err := c.do(ctx, http.MethodGet, path, principal, nil, &reservations); err != nil {
		return nil, fmt.Errorf("get user reservations: %w", err)
	}
	return reservations, nil
}

type reviewRequest struct {
	Rating  int64  `json:"rating"`
	Comment string `json:"comment"`
}

// SubmitReview отправляет отзыв от имени текущего пользователя.
func (c *Client) SubmitReview(ctx context.Context, principal model.Principal, rating int64, comment string) error {
	if _, err := c.do(ctx, http.MethodPost, "/api/reviews", principal, reviewRequest{Rating: rating, Comment: comment}, nil); err != nil {
		return fmt.Errorf("submit review: %w", err)
	}
	return nil
}

// GetAllReviews возвращает все отзывы.
func (c *Client) GetAllReviews(ctx context.Context) ([]model.Review, error) {
	var reviews []model.Review
	if _, err := c.do(ctx, http.MethodGet, "/api/reviews", "", nil, &reviews); err != nil {
		return nil, fmt.Errorf("get reviews: %w", err)
	}
	return reviews, nil
}

// AddCoupon создаёт купон. Доступно только администратору.
func (c *Client) AddCoupon(ctx context.Context, principal model.Principal, code string, discount int64) error {
	coupon := model.Coupon{Code: code, Discount: discount}
	if _, err := c.do(ctx, http.MethodPost, "/api/coupons", principal, coupon, nil); err != nil {
		return fmt.Errorf("add coupon: %w", err)
	}
	return nil
}

// ValidateCoupon проверяет код купона. Отсутствие купона — это отрицательный
// ответ (nil, nil), а не ошибка: так "операция не удалась" отличима от
// "купона нет".
func (c *Client) ValidateCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	path := "/api/coupons/" + url.PathEscape(code)
	if _, err := c.do(ctx, http.MethodGet, path, "", nil, &coupon); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("validate coupon: %w", err)
	}
	return &coupon, nil
}

// GetCallerUserProfile возвращает профиль текущего пользователя или
// (nil, nil), если профиль ещё не создан.
func (c *Client) GetCallerUserProfile(ctx context.Context, principal model.Principal) (*model.UserProfile, error) {
	var profile model.UserProfile
	if _, err := c.do(ctx, http.MethodGet, "/api/profile", principal, nil, &profile); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &profile, nil
}

// SaveCallerUserProfile сохраняет профиль текущего пользователя.
func (c *Client) SaveCallerUserProfile(ctx context.Context, principal model.Principal, profile model.UserProfile) error {
	if _, err := c.do(ctx, http.MethodPut, "/api/profile", principal, profile, nil); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

type isAdminResponse struct {
	IsAdmin bool `json:"isAdmin"`
}

// IsCallerAdmin сообщает, является ли текущий пользователь администратором.
func (c *Client) IsCallerAdmin(ctx context.Context, principal model.Principal) (bool, error) {
	var resp isAdminResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/roles/admin", principal, nil, &resp); err != nil {
		return false, fmt.Errorf("is admin: %w", err)
	}
	return resp.IsAdmin, nil
}

type roleResponse struct {
	Role model.UserRole `json:"role"`
}

// GetCallerUserRole возвращает роль текущего пользователя.
func (c *Client) GetCallerUserRole(ctx context.Context, principal model.Principal) (model.UserRole, error) {
	var resp roleResponse
	if _, err := c.do(ctx, http.MethodGet, "/api/roles/current", principal, nil, &resp); err != nil {
		return "", fmt.Errorf("get role: %w", err)
	}
	return resp.Role, nil
}
