package domain

// Customer описывает клиента. Записи клиентов создаются при инициализации
// базы и в этом сервисе неизменяемы.
type Customer struct {
	ID     int64
	Name   string
	Orders []Order
}

// Product описывает товар. Цена хранится в минимальных денежных единицах
// (копейки/центы), чтобы исключить накопление ошибок двоичной арифметики
// с плавающей точкой при подсчёте итогов.
type Product struct {
	ID         int64
	Name       string
	PriceMinor int64
}
