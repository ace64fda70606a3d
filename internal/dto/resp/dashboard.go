package resp

import "tidebase/internal/model"

type ImportResponse struct {
	Imported int `json:"imported"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type OrderDetailResponse struct {
	Order *model.Order      `json:"order"`
	Items []model.OrderItem `json:"items"`
}

type QueryListResponse struct {
	Queries []string `json:"queries"`
}

type QueryResultResponse struct {
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}
