package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ShopProfile is printed on invoices and reports.
type ShopProfile struct {
	Name           string `yaml:"name" json:"name"`
	AddressLine1   string `yaml:"address_line1" json:"address_line1"`
	AddressLine2   string `yaml:"address_line2" json:"address_line2"`
	City           string `yaml:"city" json:"city"`
	Phone          string `yaml:"phone" json:"phone"`
	CurrencyPrefix string `yaml:"currency_prefix" json:"currency_prefix"`
	InvoicePrefix  string `yaml:"invoice_prefix" json:"invoice_prefix"`
	Footer         string `yaml:"footer" json:"footer"`
}

func DefaultShopProfile() ShopProfile {
	return ShopProfile{
		Name:           "Taj Autos",
		AddressLine1:   "Shop 14, Meri Ruby Plaza",
		AddressLine2:   "Sadar",
		City:           "Karachi",
		Phone:          "",
		CurrencyPrefix: "Rs.",
		InvoicePrefix:  "TA",
		Footer:         "Thank you for your business",
	}
}

// LoadShopProfile reads a YAML profile from path over the defaults. An empty
// path returns the defaults.
func LoadShopProfile(path string) (ShopProfile, error) {
	profile := DefaultShopProfile()
	path = strings.TrimSpace(path)
	if path == "" {
		return profile, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("read shop profile: %w", err)
	}
	var override ShopProfile
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return profile, fmt.Errorf("parse shop profile %s: %w", path, err)
	}

	merge(&profile.Name, override.Name)
	merge(&profile.AddressLine1, override.AddressLine1)
	merge(&profile.AddressLine2, override.AddressLine2)
	merge(&profile.City, override.City)
	merge(&profile.Phone, override.Phone)
	merge(&profile.CurrencyPrefix, override.CurrencyPrefix)
	merge(&profile.InvoicePrefix, override.InvoicePrefix)
	merge(&profile.Footer, override.Footer)
	return profile, nil
}

func merge(dst *string, val string) {
	if val = strings.TrimSpace(val); val != "" {
		*dst = val
	}
}
