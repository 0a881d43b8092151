package dto

// CreateItemRequest payload for adding an inventory item.
type CreateItemRequest struct {
	SKU       string  `json:"sku" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Quantity  int     `json:"quantity" binding:"gte=0"`
	UnitPrice float64 `json:"unitPrice" binding:"gte=0"`
	Location  string  `json:"location"`
}

// UpdateItemRequest payload for modifying an item. Nil fields are unchanged.
type UpdateItemRequest struct {
	Name      *string  `json:"name"`
	Quantity  *int     `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
	Location  *string  `json:"location"`
	Active    *bool    `json:"active"`
}

// ItemQuery mirrors supported listing filters.
type ItemQuery struct {
	Search   string `form:"search"`
	Location string `form:"location"`
	Active   *bool  `form:"active"`
	Page     string `form:"page"`
	PageSize string `form:"pageSize"`
}
