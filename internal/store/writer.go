package store

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/timeparse"
	"traceability-dashboard/internal/types"
)

// Part 描述模拟器 / 种子数据写入的一个工件在某工站的加工过程
type Part struct {
	QR       string
	Model    string
	Loaded   time.Time  // 上料时间
	Finished *time.Time // 下料时间，nil 表示仍在加工
	Status   types.Status
	Values   []float64 // 检测工站的测量值
}

// 派生的关联 QR 码：壳体 / 活塞 / 外圈 / 新壳体
func housingQR(qr string) string  { return "H" + qr }
func pistonQR(qr string) string   { return "P" + qr }
func externalQR(qr string) string { return "E" + qr }

func textStamp(t time.Time) string { return t.Format(timeparse.DisplayLayout) }

// InsertPart 按工站类别写入上料记录，已完成时同时写入下料记录
func (s *Store) InsertPart(ctx context.Context, d station.Descriptor, p Part) error {
	db := s.db.WithContext(ctx)
	status := string(p.Status)
	model := types.Ptr(p.Model)
	prev := types.Ptr(string(types.StatusOK))

	var prepRow, postRow any
	switch d.Kind {
	case types.KindStandard:
		pr := &standardPrepRow{Timestamp: textStamp(p.Loaded), QRData: p.QR, ModelName: model, PreviousMachineStatus: prev}
		if d.Operation == station.OpCNC {
			pr.MachineName = types.Ptr(d.Name)
			pr.PreviousMachineStatus = nil
		}
		prepRow = pr
		if p.Finished != nil {
			post := &standardPostRow{Timestamp: textStamp(*p.Finished), QRData: p.QR, Status: &status}
			slots := []**float64{&post.Value1, &post.Value2, &post.Value3, &post.Value4, &post.Value5, &post.Value6}
			for i, v := range p.Values {
				if i < d.GaugeSlots && i < len(slots) {
					*slots[i] = types.Ptr(v)
				}
			}
			postRow = post
		}
	case types.KindWashingLoad, types.KindWashingUnload:
		at := p.Loaded
		if d.Kind == types.KindWashingUnload && p.Finished != nil {
			at = *p.Finished
		}
		row := &washingRow{Timestamp: textStamp(at), QRData: p.QR, PreviousMachineStatus: prev, ModelName: model}
		if p.Status != types.StatusPending {
			row.Status = &status
		}
		prepRow = row
	case types.KindAssembly:
		created := p.Loaded
		row := &assemblyRow{
			TimestampInternal:             p.Loaded,
			QRDataInternal:                p.QR,
			PreviousMachineInternalStatus: prev,
			ModelNameInternal:             model,
			CreatedAt:                     &created,
		}
		if p.Finished != nil {
			row.TimestampExternal = p.Finished
			row.QRDataExternal = types.Ptr(externalQR(p.QR))
			row.ModelNameExternal = model
			row.TimestampHousing = p.Finished
			row.QRDataHousing = types.Ptr(housingQR(p.QR))
			row.ModelNameHousing = model
			row.PreviousMachineHousingStatus = prev
			row.Status = &status
		}
		prepRow = row
	case types.KindLeakTest:
		housing := housingQR(p.QR)
		prepRow = &leakPrepRow{
			Timestamp:             textStamp(p.Loaded),
			QRDataPiston:          p.QR,
			ModelNameInternal:     model,
			QRDataHousing:         &housing,
			ModelNameExternal:     model,
			PreviousMachineStatus: prev,
		}
		if p.Finished != nil {
			postRow = &leakPostRow{
				Timestamp:        textStamp(*p.Finished),
				QRDataHousingNew: "N" + housing,
				QRDataHousing:    &housing,
				MatchStatus:      types.Ptr(string(types.StatusOK)),
				Status:           &status,
			}
		}
	case types.KindPainting:
		piston := pistonQR(p.QR)
		prepRow = &paintPrepRow{
			Timestamp:             textStamp(p.Loaded),
			QRDataHousing:         types.Ptr(p.QR),
			ModelNameHousing:      model,
			QRDataPiston:          &piston,
			ModelNamePiston:       model,
			PreviousMachineStatus: prev,
			PreStatus:             prev,
		}
		if p.Finished != nil {
			postRow = &paintPostRow{
				Timestamp:     types.Ptr(textStamp(*p.Finished)),
				QRDataPiston:  piston,
				QRDataHousing: types.Ptr(p.QR),
				Status:        &status,
			}
		}
	case types.KindLubrication:
		prepRow = &lubPrepRow{
			Timestamp:             textStamp(p.Loaded),
			QRDataPiston:          p.QR,
			ModelNamePiston:       model,
			QRDataHousing:         types.Ptr(housingQR(p.QR)),
			ModelNameHousing:      model,
			PreviousMachineStatus: prev,
		}
		if p.Finished != nil {
			postRow = &lubPostRow{Timestamp: textStamp(*p.Finished), QRDataPiston: p.QR, Status: &status}
		}
	default:
		return fmt.Errorf("工站 %s: 未知类别 %q", d.ID, d.Kind)
	}

	if err := db.Table(d.PrimaryTable()).Create(prepRow).Error; err != nil {
		return errs.Wrapf(err, "写入 %s", d.PrimaryTable())
	}
	if postRow != nil {
		if err := db.Table(d.PostTable).Create(postRow).Error; err != nil {
			return errs.Wrapf(err, "写入 %s", d.PostTable)
		}
	}
	return nil
}

// SeedOptions 样例数据参数
type SeedOptions struct {
	PartsPerStation int
	Window          time.Duration // 样例时间跨度，截止于 Now
	Now             time.Time
	Seed            int64
	Models          []string
}

// QRPrefix 由工站 ID 生成 QR 码前缀
func QRPrefix(d station.Descriptor) string {
	return strings.ToUpper(strings.ReplaceAll(d.ID, "_", ""))
}

// RandomPart 生成一个随机工件：95% OK，少量未完成
func RandomPart(rng *rand.Rand, d station.Descriptor, serial int, loaded time.Time, models []string) Part {
	p := Part{
		QR:     fmt.Sprintf("%s%06d", QRPrefix(d), serial),
		Model:  models[rng.Intn(len(models))],
		Loaded: loaded,
		Status: types.StatusOK,
	}
	if rng.Float64() < 0.05 {
		p.Status = types.StatusNG
	}
	if rng.Float64() < 0.03 {
		p.Status = types.StatusPending
		return p
	}
	finished := loaded.Add(time.Duration(30+rng.Intn(240)) * time.Second)
	p.Finished = &finished
	for i := 0; i < d.GaugeSlots; i++ {
		p.Values = append(p.Values, 10+rng.Float64())
	}
	return p
}

// Seed 为每个工站写入确定性的样例数据
func Seed(ctx context.Context, s *Store, stations []station.Descriptor, opts SeedOptions) (int, error) {
	if len(opts.Models) == 0 {
		opts.Models = []string{"PX-100", "PX-200", "HX-300"}
	}
	if opts.PartsPerStation <= 0 {
		opts.PartsPerStation = 50
	}
	if opts.Window <= 0 {
		opts.Window = 7 * 24 * time.Hour
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	step := opts.Window / time.Duration(opts.PartsPerStation)
	start := opts.Now.Add(-opts.Window)

	written := 0
	for _, d := range stations {
		for i := 0; i < opts.PartsPerStation; i++ {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			loaded := start.Add(time.Duration(i) * step)
			if err := s.InsertPart(ctx, d, RandomPart(rng, d, i+1, loaded, opts.Models)); err != nil {
				return written, err
			}
			written++
		}
	}
	s.logger.Info("样例数据写入完成", "stations", len(stations), "parts", written)
	return written, nil
}
