package dto

import "github.com/arcfolio/folio_api/model"

type SubmitContactRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=128"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,min=1,max=5000"`
	Intent  string `json:"intent" validate:"required,oneof=job collaboration question other"`
}

func (r SubmitContactRequest) Validate() error {
	return GetValidator().Struct(r)
}

type SubmitContactResponse struct {
	StoreID string `json:"store_id"`
}

type ListContactsResponse struct {
	Count   int                         `json:"count"`
	Total   int                         `json:"total"`
	Records []model.StoredContactRecord `json:"records"`
}
