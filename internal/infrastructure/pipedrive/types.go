package pipedrive

import "encoding/json"

// dealListResponse is the envelope for GET /deals.
type dealListResponse struct {
	Success        bool              `json:"success"`
	Data           []json.RawMessage `json:"data"`
	Error          string            `json:"error"`
	AdditionalData *additionalData   `json:"additional_data"`
}

type additionalData struct {
	Pagination *pagination `json:"pagination"`
}

type pagination struct {
	Start                 int  `json:"start"`
	Limit                 int  `json:"limit"`
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             int  `json:"next_start"`
}

// pipedriveDeal carries the fixed deal fields. Custom fields are keyed
// by opaque hash strings and are extracted separately from the raw
// payload using the tenant's configured field keys.
type pipedriveDeal struct {
	ID            int64       `json:"id"`
	Title         string      `json:"title"`
	Status        string      `json:"status"`
	Value         json.Number `json:"value"`
	Currency      string      `json:"currency"`
	ProductsCount int         `json:"products_count"`
	WonTime       string      `json:"won_time"`
	OrgID         *orgRef     `json:"org_id"`
	PersonID      *personRef  `json:"person_id"`
}

// orgRef is the nested organization reference on a deal.
type orgRef struct {
	Value int64  `json:"value"`
	Name  string `json:"name"`
}

type personRef struct {
	Name string `json:"name"`
}

// dealProductsResponse is the envelope for GET /deals/{id}/products.
type dealProductsResponse struct {
	Success bool                   `json:"success"`
	Data    []pipedriveDealProduct `json:"data"`
	Error   string                 `json:"error"`
}

type pipedriveDealProduct struct {
	ID        int64       `json:"id"`
	DealID    int64       `json:"deal_id"`
	Name      string      `json:"name"`
	Quantity  json.Number `json:"quantity"`
	ItemPrice json.Number `json:"item_price"`
	Sum       json.Number `json:"sum"`
}

// updateResponse is the envelope for PUT /deals/{id}.
type updateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
