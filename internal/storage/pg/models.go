// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package pg

import (
	"time"

	"github.com/dicio/gatewayd/internal/outlet"
)

// outletRow maps the outlets table. Columns are declared explicitly instead of
// embedding gorm.Model so no soft-delete column is added.
type outletRow struct {
	MACAddress     int       `gorm:"column:mac_address;primaryKey;autoIncrement:false"`
	Name           string    `gorm:"column:name;type:text;not null"`
	Status         string    `gorm:"column:status;type:varchar(3);not null;default:OFF"`
	CurPower       int       `gorm:"column:cur_power;not null;default:0"`
	CurTemperature int       `gorm:"column:cur_temperature;not null;default:0"`
	CurLight       int       `gorm:"column:cur_light;not null;default:0"`
	CurHumidity    int       `gorm:"column:cur_humidity;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (outletRow) TableName() string { return "outlets" }

func toRow(o *outlet.Outlet) outletRow {
	return outletRow{
		MACAddress:     o.MACAddress,
		Name:           o.Name,
		Status:         string(o.Status),
		CurPower:       o.CurPower,
		CurTemperature: o.CurTemperature,
		CurLight:       o.CurLight,
		CurHumidity:    o.CurHumidity,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (r outletRow) toOutlet() outlet.Outlet {
	return outlet.Outlet{
		MACAddress:     r.MACAddress,
		Name:           r.Name,
		Status:         outlet.Status(r.Status),
		CurPower:       r.CurPower,
		CurTemperature: r.CurTemperature,
		CurLight:       r.CurLight,
		CurHumidity:    r.CurHumidity,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
