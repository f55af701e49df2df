// Package admin содержит чистые агрегации административной панели над
// закэшированным списком заказов. Пакет не хранит собственного состояния
// и не выполняет ввод-вывод.
package admin

import (
	"sort"
	"time"

	"github.com/mmeshcher/swad-client/internal/model"
)

// StatusCounts — количество заказов по интересующим статусам.
// Неизвестные строки статуса не попадают ни в одну корзину, но остаются
// в сырых списках.
type StatusCounts struct {
	Delivered int
	Pending   int
}

// DateBucket — заказы одного календарного дня и их суммарная выручка.
type DateBucket struct {
	Day     time.Time
	Orders  []model.Order
	Revenue int64
}

// Report — сводка административной панели, выводимая из списка заказов.
type Report struct {
	TotalRevenue int64
	Counts       StatusCounts
	ByDate       []DateBucket
}

// TotalRevenue возвращает валовую выручку по всем заказам без фильтра
// по статусу.
func TotalRevenue(orders []model.Order) int64 {
	var sum int64
	for _, o := range orders {
		sum += o.TotalAmount
	}
	return sum
}

// CountByStatus возвращает количество доставленных и ожидающих заказов.
func CountByStatus(orders []model.Order) StatusCounts {
	var c StatusCounts
	for _, o := range orders {
		switch o.Status {
		case string(model.OrderStatusDelivered):
			c.Delivered++
		case string(model.OrderStatusPending):
			c.Pending++
		}
	}
	return c
}

// OrdersByDate разбивает заказы по календарным дням создания (UTC).
// Внутри корзины выручка равна сумме totalAmount её заказов; корзины
// отсортированы от самой свежей к самой старой.
func OrdersByDate(orders []model.Order) []DateBucket {
	byDay := make(map[time.Time]*DateBucket)
	for _, o := range orders {
		day := o.CreatedAt.UTC().Truncate(24 * time.Hour)
		b, ok := byDay[day]
		if !ok {
			b = &DateBucket{Day: day}
			byDay[day] = b
		}
		b.Orders = append(b.Orders, o)
		b.Revenue += o.TotalAmount
	}

	buckets := make([]DateBucket, 0, len(byDay))
	for _, b := range byDay {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Day.After(buckets[j].Day)
	})
	return buckets
}

// BuildReport собирает полную сводку панели администратора.
func BuildReport(orders []model.Order) Report {
	return Report{
		TotalRevenue: TotalRevenue(orders),
		Counts:       CountByStatus(orders),
		ByDate:       OrdersByDate(orders),
	}
}
