package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icarpio/marianoapi/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	serviceIDs, err := seedServices(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedDentists(context.Background(), pool, 8, serviceIDs); err != nil {
		log.Fatalf("seed dentists: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	services := []struct {
		name     string
		duration int
		price    float64
	}{
		{"Checkup and cleaning", 30, 45},
		{"Filling", 60, 80},
		{"Root canal", 90, 250},
		{"Extraction", 60, 120},
		{"Whitening", 60, 150},
		{"Orthodontic consult", 30, 60},
	}

	log.Printf("seeding %d services", len(services))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, description, duration_minutes, price, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, s.name, gofakeit.Sentence(8), s.duration, s.price)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	log.Println("services seeded")
	return ids, nil
}

func seedDentists(ctx context.Context, pool *pgxpool.Pool, count int, serviceIDs []uuid.UUID) error {
	log.Printf("seeding %d dentists", count)

	specialties := []string{
		"General Dentistry",
		"Orthodontics",
		"Endodontics",
		"Periodontics",
		"Oral Surgery",
		"Pediatric Dentistry",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO dentists (id, first_name, last_name, email, phone, specialty, bio, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, id, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), gofakeit.Phone(),
			specialties[gofakeit.Number(0, len(specialties)-1)], gofakeit.Sentence(12))
		if err != nil {
			return err
		}

		// Every dentist offers a random subset of at least three services.
		offered := append([]uuid.UUID(nil), serviceIDs...)
		gofakeit.ShuffleAnySlice(offered)
		n := gofakeit.Number(3, len(offered))
		for _, svcID := range offered[:n] {
			_, err := tx.Exec(ctx, `
				INSERT INTO dentist_services (dentist_id, service_id) VALUES ($1, $2)
			`, id, svcID)
			if err != nil {
				return err
			}
		}

		// Monday through Friday, with a random weekday off for some.
		dayOff := -1
		if gofakeit.Bool() {
			dayOff = gofakeit.Number(0, 4)
		}
		for weekday := 0; weekday <= 4; weekday++ {
			if weekday == dayOff {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO work_schedules (id, dentist_id, day_of_week, start_min, end_min, start2_min, end2_min, is_active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, true)
			`, uuid.New(), id, weekday, 10*60, 14*60, 16*60, 20*60)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Println("dentists seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 100

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, first_name, last_name, email, phone, notes, created_at)
				VALUES ($1, $2, $3, $4, $5, '', now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
