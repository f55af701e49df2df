// Package cart реализует локальную корзину покупателя: позиции, купон
// и производные суммы. Корзина не выполняет ввод-вывод; все операции
// синхронные и тотальные.
package cart

import "github.com/mmeshcher/swad-client/internal/model"

// Line — одна позиция корзины. Цена хранится в минорных единицах валюты.
type Line struct {
	DishID    int64
	Name      string
	UnitPrice int64
	Quantity  int64
}

// Snapshot — неизменяемая копия корзины, снятая в момент оформления заказа.
// Последующие изменения корзины на снимок не влияют.
type Snapshot struct {
	Items      []model.OrderItem
	Subtotal   int64
	Discount   int64
	Total      int64
	CouponCode string
}

// Engine хранит состояние корзины. Позиции хранятся в порядке добавления,
// блюдо встречается не более одного раза. Процент скидки и код купона
// устанавливаются и сбрасываются только вместе.
type Engine struct {
	lines           []Line
	discountPercent int64
	couponCode      string
}

// New создаёт пустую корзину.
func New() *Engine {
	return &Engine{}
}

// AddLine добавляет блюдо в корзину. Если блюдо уже есть, количество
// увеличивается на единицу, иначе появляется новая позиция с количеством 1.
func (e *Engine) AddLine(dish model.Dish) {
	for i := range e.lines {
		if e.lines[i].DishID == dish.ID {
			e.lines[i].Quantity++
			return
		}
	}
	e.lines = append(e.lines, Line{
		DishID:    dish.ID,
		Name:      dish.Name,
		UnitPrice: dish.Price,
		Quantity:  1,
	})
}

// SetQuantity устанавливает количество для позиции. Количество ≤ 0 удаляет
// позицию; отрицательные суммы невозможны по построению.
func (e *Engine) SetQuantity(dishID, quantity int64) {
	if quantity <= 0 {
		e.RemoveLine(dishID)
		return
	}
	for i := range e.lines {
		if e.lines[i].DishID == dishID {
			e.lines[i].Quantity = quantity
			return
		}
	}
}

// RemoveLine удаляет позицию с указанным блюдом, сохраняя порядок остальных.
func (e *Engine) RemoveLine(dishID int64) {
	for i := range e.lines {
		if e.lines[i].DishID == dishID {
			e.lines = append(e.lines[:i], e.lines[i+1:]...)
			return
		}
	}
}

// ApplyCoupon атомарно устанавливает код купона и процент скидки.
// Процент валидируется вызывающей стороной до применения (0–100);
// повторное применение заменяет предыдущий купон.
func (e *Engine) ApplyCoupon(code string, discountPercent int64) {
	e.couponCode = code
	e.discountPercent = discountPercent
}

// ClearCoupon сбрасывает купон и скидку одновременно.
func (e *Engine) ClearCoupon() {
	e.couponCode = ""
	e.discountPercent = 0
}

// Clear опустошает корзину и сбрасывает купон. Используется после
// успешного оформления заказа.
func (e *Engine) Clear() {
	e.lines = nil
	e.ClearCoupon()
}

// Lines возвращает копию позиций корзины в порядке добавления.
func (e *Engine) Lines() []Line {
	out := make([]Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// Len возвращает число позиций в корзине.
func (e *Engine) Len() int {
	return len(e.lines)
}

// Coupon возвращает применённый код купона и процент скидки.
func (e *Engine) Coupon() (string, int64) {
	return e.couponCode, e.discountPercent
}

// Subtotal возвращает сумму позиций без скидки. Производные суммы всегда
// вычисляются при чтении и нигде не кэшируются.
func (e *Engine) Subtotal() int64 {
	var sum int64
	for _, l := range e.lines {
		sum += l.UnitPrice * l.Quantity
	}
	return sum
}

// DiscountAmount возвращает размер скидки, округлённый до ближайшей
// минорной единицы.
func (e *Engine) DiscountAmount() int64 {
	return (e.Subtotal()*e.discountPercent + 50) / 100
}

// Total возвращает итоговую сумму с учётом скидки.
func (e *Engine) Total() int64 {
	return e.Subtotal() - e.DiscountAmount()
}

// TotalItems возвращает суммарное количество единиц товара в корзине.
func (e *Engine) TotalItems() int64 {
	var n int64
	for _, l := range e.lines {
		n += l.Quantity
	}
	return n
}

// Snapshot снимает неизменяемую копию корзины для передачи в оформление
// заказа. Позиции копируются, суммы фиксируются в момент вызова.
func (e *Engine) Snapshot() Snapshot {
	items := make([]model.OrderItem, 0, len(e.lines))
	for _, l := range e.lines {
		items = append(items, model.OrderItem{
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return Snapshot{
		Items:      items,
		Subtotal:   e.Subtotal(),
		Discount:   e.DiscountAmount(),
		Total:      e.Total(),
		CouponCode: e.couponCode,
	}
}
