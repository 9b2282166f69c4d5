package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/otonoha/academy-backend/internal/config"
	"github.com/otonoha/academy-backend/internal/db"
	"github.com/otonoha/academy-backend/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type seedReward struct {
	Name        string
	Type        model.RewardType
	Rarity      model.Rarity
	Value       string
	Probability float64
	Stock       *int
	ValidDays   *int
	UsageLimit  *int
	Delivery    model.DeliveryType
}

const machineSlug = "melody-capsule"

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := gdb.AutoMigrate(
		&model.GachaMachine{},
		&model.GachaReward{},
		&model.MachineReward{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	var existing model.GachaMachine
	err = gdb.Where("machine_slug = ?", machineSlug).First(&existing).Error
	if err == nil && !strings.EqualFold(os.Getenv("FORCE_SEED"), "true") {
		log.Printf("machine %q already exists; skipping seed (set FORCE_SEED=true to override)", machineSlug)
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("check existing machine: %w", err)
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		machine := model.GachaMachine{
			MachineSlug:    machineSlug,
			Name:           "メロディカプセル",
			Description:    "練習ポイントで回せるスタンダードガチャ",
			SingleDrawCost: 30,
			TenDrawCost:    270,
			TenDrawBonus:   1,
			IsActive:       true,
		}
		if err := tx.Where("machine_slug = ?", machineSlug).
			FirstOrCreate(&machine, model.GachaMachine{MachineSlug: machineSlug}).Error; err != nil {
			return err
		}

		rewards := buildSeedRewards()
		for order, sr := range rewards {
			reward := model.GachaReward{
				Name:           sr.Name,
				RewardType:     sr.Type,
				Rarity:         sr.Rarity,
				RewardValue:    datatypes.JSON(sr.Value),
				UsageLimit:     sr.UsageLimit,
				ValidDays:      sr.ValidDays,
				StockTotal:     sr.Stock,
				StockRemaining: sr.Stock,
				DeliveryType:   sr.Delivery,
			}
			if err := tx.Where("name = ?", sr.Name).
				FirstOrCreate(&reward, model.GachaReward{Name: sr.Name}).Error; err != nil {
				return err
			}
			pool := model.MachineReward{
				MachineID:    machine.ID,
				RewardID:     reward.ID,
				Probability:  sr.Probability,
				Weight:       int(sr.Probability),
				IsActive:     true,
				DisplayOrder: order,
			}
			if err := tx.Where("machine_id = ? AND reward_id = ?", machine.ID, reward.ID).
				FirstOrCreate(&pool, model.MachineReward{MachineID: machine.ID, RewardID: reward.ID}).Error; err != nil {
				return err
			}
		}
		log.Printf("seeded machine %q with %d rewards", machineSlug, len(rewards))
		return nil
	})
}

func intp(v int) *int { return &v }

func buildSeedRewards() []seedReward {
	return []seedReward{
		{
			Name:        "50ポイントボーナス",
			Type:        model.RewardPointsBonus,
			Rarity:      model.RarityCommon,
			Value:       `{"points": 50}`,
			Probability: 55,
			ValidDays:   intp(30),
			Delivery:    model.DeliveryAuto,
		},
		{
			Name:        "レッスン10%割引クーポン",
			Type:        model.RewardDiscountCoupon,
			Rarity:      model.RarityCommon,
			Value:       `{"percent": 10}`,
			Probability: 25,
			ValidDays:   intp(60),
			UsageLimit:  intp(1),
			Delivery:    model.DeliveryAuto,
		},
		{
			Name:        "無料体験レッスン",
			Type:        model.RewardFreeTrial,
			Rarity:      model.RarityRare,
			Value:       `{"lessons": 1}`,
			Probability: 12,
			ValidDays:   intp(90),
			UsageLimit:  intp(1),
			Delivery:    model.DeliveryManual,
		},
		{
			Name:        "月謝1回分バウチャー",
			Type:        model.RewardCourseVoucher,
			Rarity:      model.RarityEpic,
			Value:       `{"amount_yen": 8000}`,
			Probability: 6,
			Stock:       intp(20),
			ValidDays:   intp(120),
			UsageLimit:  intp(1),
			Delivery:    model.DeliveryManual,
		},
		{
			Name:        "限定メトロノーム",
			Type:        model.RewardPhysicalGift,
			Rarity:      model.RarityLegendary,
			Value:       `{"sku": "metronome-ltd"}`,
			Probability: 2,
			Stock:       intp(5),
			Delivery:    model.DeliveryPhysical,
		},
	}
}
