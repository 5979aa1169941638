package store

import (
	"time"

	"traceability-dashboard/internal/types"
)

// 以下为各类工站表的行结构。表名由工站描述在运行时指定 (db.Table)，
// 同类工站的表结构一致；列在某张表中不存在时对应字段保持零值。

// standardPrepRow CNC / 检测 / 珩磨 / 去毛刺 上料
type standardPrepRow struct {
	ID                    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp             string  `gorm:"column:timestamp;size:100"`
	MachineName           *string `gorm:"column:machine_name;size:50"`
	QRData                string  `gorm:"column:qr_data;size:100"`
	ModelName             *string `gorm:"column:model_name;size:20"`
	PreviousMachineStatus *string `gorm:"column:previous_machine_status;size:10"`
}

// standardPostRow 下料，检测工站额外携带 5 或 6 个测量值
type standardPostRow struct {
	ID        int64    `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp string   `gorm:"column:timestamp;size:100"`
	QRData    string   `gorm:"column:qr_data;size:100"`
	Status    *string  `gorm:"column:status;size:10"`
	Value1    *float64 `gorm:"column:value1"`
	Value2    *float64 `gorm:"column:value2"`
	Value3    *float64 `gorm:"column:value3"`
	Value4    *float64 `gorm:"column:value4"`
	Value5    *float64 `gorm:"column:value5"`
	Value6    *float64 `gorm:"column:value6"`
}

// washingRow 清洗上料表与下料表结构相同
type washingRow struct {
	ID                    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp             string  `gorm:"column:timestamp;size:100"`
	QRData                string  `gorm:"column:qr_data;size:100"`
	PreviousMachineStatus *string `gorm:"column:previous_machine_status;size:10"`
	Status                *string `gorm:"column:status;size:10"`
	ModelName             *string `gorm:"column:model_name;size:20"`
}

// assemblyRow OP40 装配，上下料合并为一行，时间为原生时间列
type assemblyRow struct {
	ID                            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	TimestampInternal             time.Time  `gorm:"column:timestamp_internal"`
	QRDataInternal                string     `gorm:"column:qr_data_internal;size:100"`
	PreviousMachineInternalStatus *string    `gorm:"column:previous_machine_internal_status;size:10"`
	ModelNameInternal             *string    `gorm:"column:model_name_internal;size:20"`
	TimestampExternal             *time.Time `gorm:"column:timestamp_external"`
	QRDataExternal                *string    `gorm:"column:qr_data_external;size:100"`
	ModelNameExternal             *string    `gorm:"column:model_name_external;size:20"`
	TimestampHousing              *time.Time `gorm:"column:timestamp_housing"`
	PreviousMachineHousingStatus  *string    `gorm:"column:previous_machine_housing_status;size:10"`
	QRDataHousing                 *string    `gorm:"column:qr_data_housing;size:100"`
	ModelNameHousing              *string    `gorm:"column:model_name_housing;size:20"`
	Status                        *string    `gorm:"column:status;size:20"`
	CreatedAt                     *time.Time `gorm:"column:created_at"`
}

// leakPrepRow OP80 上料
type leakPrepRow struct {
	ID                    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp             string  `gorm:"column:timestamp;size:100"`
	QRDataPiston          string  `gorm:"column:qr_data_piston;size:100"`
	ModelNameInternal     *string `gorm:"column:model_name_internal;size:20"`
	QRDataHousing         *string `gorm:"column:qr_data_housing;size:100"`
	ModelNameExternal     *string `gorm:"column:model_name_external;size:20"`
	PreviousMachineStatus *string `gorm:"column:previous_machine_status;size:10"`
}

// leakPostRow OP80 下料
type leakPostRow struct {
	ID               int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp        string  `gorm:"column:timestamp;size:100"`
	QRDataHousingNew string  `gorm:"column:qr_data_housing_new;size:100"`
	QRDataHousing    *string `gorm:"column:qr_data_housing;size:100"`
	MatchStatus      *string `gorm:"column:match_status;size:10"`
	Status           *string `gorm:"column:status;size:10"`
}

// paintPrepRow 喷漆上料
type paintPrepRow struct {
	ID                    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp             string  `gorm:"column:timestamp;size:100"`
	QRDataHousing         *string `gorm:"column:qr_data_housing;size:100"`
	ModelNameHousing      *string `gorm:"column:model_name_housing;size:20"`
	QRDataPiston          *string `gorm:"column:qr_data_piston;size:100"`
	ModelNamePiston       *string `gorm:"column:model_name_piston;size:20"`
	PreviousMachineStatus *string `gorm:"column:previous_machine_status;size:10"`
	PreStatus             *string `gorm:"column:pre_status;size:10"`
}

// paintPostRow 喷漆下料，时间戳可能为空
type paintPostRow struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp     *string `gorm:"column:timestamp;size:100"`
	QRDataPiston  string  `gorm:"column:qr_data_piston;size:100"`
	QRDataHousing *string `gorm:"column:qr_data_housing;size:100"`
	Status        *string `gorm:"column:status;size:50"`
}

// lubPrepRow 润滑上料
type lubPrepRow struct {
	ID                    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp             string  `gorm:"column:timestamp;size:100"`
	QRDataPiston          string  `gorm:"column:qr_data_piston;size:100"`
	ModelNamePiston       *string `gorm:"column:model_name_piston;size:20"`
	QRDataHousing         *string `gorm:"column:qr_data_housing;size:100"`
	ModelNameHousing      *string `gorm:"column:model_name_housing;size:20"`
	PreviousMachineStatus *string `gorm:"column:previous_machine_status;size:10"`
}

// lubPostRow 润滑下料
type lubPostRow struct {
	ID           int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp    string  `gorm:"column:timestamp;size:100"`
	QRDataPiston string  `gorm:"column:qr_data_piston;size:100"`
	Status       *string `gorm:"column:status;size:50"`
}

func (r standardPrepRow) record(table string) types.PrepRecord {
	return types.PrepRecord{
		ID:          r.ID,
		Table:       table,
		Time:        types.TextTime(r.Timestamp),
		QR:          types.Ptr(r.QRData),
		ModelName:   r.ModelName,
		MachineName: r.MachineName,
		PrevStatus:  r.PreviousMachineStatus,
	}
}

func (r standardPostRow) record(table string, slots int) types.PostRecord {
	rec := types.PostRecord{
		ID:     r.ID,
		Table:  table,
		Time:   types.TextTime(r.Timestamp),
		QR:     types.Ptr(r.QRData),
		Status: r.Status,
	}
	if slots > 0 {
		values := []*float64{r.Value1, r.Value2, r.Value3, r.Value4, r.Value5, r.Value6}
		if slots < len(values) {
			values = values[:slots]
		}
		rec.Values = values
	}
	return rec
}

func (r washingRow) record(table string) types.PrepRecord {
	return types.PrepRecord{
		ID:         r.ID,
		Table:      table,
		Time:       types.TextTime(r.Timestamp),
		QR:         types.Ptr(r.QRData),
		ModelName:  r.ModelName,
		PrevStatus: r.PreviousMachineStatus,
		Status:     r.Status,
	}
}

func (r assemblyRow) record(table string) types.PrepRecord {
	rec := types.PrepRecord{
		ID:               r.ID,
		Table:            table,
		Time:             types.NativeTime(r.TimestampInternal),
		QRInternal:       types.Ptr(r.QRDataInternal),
		QRExternal:       r.QRDataExternal,
		QRHousing:        r.QRDataHousing,
		ModelInternal:    r.ModelNameInternal,
		ModelExternal:    r.ModelNameExternal,
		ModelHousing:     r.ModelNameHousing,
		PrevStatus:       r.PreviousMachineInternalStatus,
		PrevHousingState: r.PreviousMachineHousingStatus,
		Status:           r.Status,
	}
	if r.TimestampExternal != nil {
		rec.ExternalTime = types.NativeTime(*r.TimestampExternal)
	}
	if r.TimestampHousing != nil {
		rec.HousingTime = types.NativeTime(*r.TimestampHousing)
	}
	return rec
}

func (r leakPrepRow) record(table string) types.PrepRecord {
	return types.PrepRecord{
		ID:            r.ID,
		Table:         table,
		Time:          types.TextTime(r.Timestamp),
		QRPiston:      types.Ptr(r.QRDataPiston),
		QRHousing:     r.QRDataHousing,
		ModelInternal: r.ModelNameInternal,
		ModelExternal: r.ModelNameExternal,
		PrevStatus:    r.PreviousMachineStatus,
	}
}

func (r leakPostRow) record(table string) types.PostRecord {
	return types.PostRecord{
		ID:           r.ID,
		Table:        table,
		Time:         types.TextTime(r.Timestamp),
		QRHousingNew: types.Ptr(r.QRDataHousingNew),
		QRHousing:    r.QRDataHousing,
		MatchStatus:  r.MatchStatus,
		Status:       r.Status,
	}
}

func (r paintPrepRow) record(table string) types.PrepRecord {
	return types.PrepRecord{
		ID:           r.ID,
		Table:        table,
		Time:         types.TextTime(r.Timestamp),
		QRHousing:    r.QRDataHousing,
		QRPiston:     r.QRDataPiston,
		ModelHousing: r.ModelNameHousing,
		ModelPiston:  r.ModelNamePiston,
		PrevStatus:   r.PreviousMachineStatus,
		PreStatus:    r.PreStatus,
	}
}

func (r paintPostRow) record(table string) types.PostRecord {
	rec := types.PostRecord{
		ID:        r.ID,
		Table:     table,
		QRPiston:  types.Ptr(r.QRDataPiston),
		QRHousing: r.QRDataHousing,
		Status:    r.Status,
	}
	if r.Timestamp != nil {
		rec.Time = types.TextTime(*r.Timestamp)
	}
	return rec
}

func (r lubPrepRow) record(table string) types.PrepRecord {
	return types.PrepRecord{
		ID:           r.ID,
		Table:        table,
		Time:         types.TextTime(r.Timestamp),
		QRPiston:     types.Ptr(r.QRDataPiston),
		QRHousing:    r.QRDataHousing,
		ModelPiston:  r.ModelNamePiston,
		ModelHousing: r.ModelNameHousing,
		PrevStatus:   r.PreviousMachineStatus,
	}
}

func (r lubPostRow) record(table string) types.PostRecord {
	return types.PostRecord{
		ID:       r.ID,
		Table:    table,
		Time:     types.TextTime(r.Timestamp),
		QRPiston: types.Ptr(r.QRDataPiston),
		Status:   r.Status,
	}
}
