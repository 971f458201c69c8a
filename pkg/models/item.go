package models

// Item is the catalog's view of an inventory item
type Item struct {
	ID        string `json:"id" yaml:"id"`
	Workspace string `json:"workspace" yaml:"workspace"`
	Name      string `json:"name" yaml:"name"`
	Category  string `json:"category" yaml:"category"`
	Location  string `json:"location" yaml:"location"`
	OnHand    int    `json:"on_hand" yaml:"on_hand"`
	Barcode   string `json:"barcode" yaml:"barcode"`
}
