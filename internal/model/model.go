// Package model содержит доменные сущности клиента ресторана Swad.
package model

import "time"

// Principal — непрозрачный уникальный идентификатор аутентифицированного пользователя.
type Principal string

// Dish описывает блюдо из меню ресторана. Цена хранится в минорных
// единицах валюты.
type Dish struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Category    string `json:"category"`
	ImageURL    string `json:"imageUrl"`
	IsVeg       bool   `json:"isVeg"`
	Available   bool   `json:"available"`
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusPreparing OrderStatus = "Preparing"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// KnownOrderStatuses перечисляет статусы, которые назначает бэкенд.
// Неизвестная строка статуса в данных допустима и не считается ошибкой.
var KnownOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// OrderItem — одна позиция заказа, зафиксированная в момент оформления.
type OrderItem struct {
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// Order описывает заказ пользователя. Заказ создаётся бэкендом; после
// создания меняется только статус, и только мутацией администратора.
type Order struct {
	ID            int64       `json:"id"`
	User          Principal   `json:"user"`
	Items         []OrderItem `json:"items"`
	TotalAmount   int64       `json:"totalAmount"`
	PaymentMethod string      `json:"paymentMethod"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Reservation описывает бронирование столика.
type Reservation struct {
	ID        int64     `json:"id"`
	User      Principal `json:"user"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Guests    int64     `json:"guests"`
	CreatedAt time.Time `json:"createdAt"`
}

// Review описывает отзыв пользователя о ресторане.
type Review struct {
	User      Principal `json:"user"`
	Rating    int64     `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// Coupon описывает скидочный купон. Код хранится в верхнем регистре.
type Coupon struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

// UserProfile содержит данные профиля текущего пользователя.
type UserProfile struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// UserRole описывает роль вызывающего пользователя.
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
	UserRoleGuest UserRole = "guest"
)
