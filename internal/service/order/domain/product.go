// internal/service/order/domain/product.go
package domain

// Product 是下单路径需要的商品读模型。
// 目录的维护（CRUD、上下架）属于商品模块，这里只消费。
type Product struct {
	ID         int64
	MerchantID int64
	Title      string
	Price      int64 // 单位：分
	Stock      int
	Active     bool
}

// Specification 商品规格。带规格下单时库存扣在规格行上。
type Specification struct {
	ID        int64
	ProductID int64
	Name      string
	Price     int64
	Stock     int
}
