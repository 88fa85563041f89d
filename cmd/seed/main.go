package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/idohaver7/PatrolVision/internal/database"
	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type sampleViolation struct {
	violationType models.ViolationType
	plate         string
	mediaURL      string
	lat, lng      float64
	address       string
	status        models.ViolationStatus
	daysAgo       int
}

var sampleViolations = []sampleViolation{
	{models.ViolationRedLight, "123-45-678", "https://picsum.photos/id/237/200/300", 32.0853, 34.7818, "Dizengoff, Tel Aviv", models.StatusPendingReview, 0},
	{models.ViolationWrongWay, "555-11-999", "https://picsum.photos/id/238/200/300", 32.0800, 34.8000, "Ramat Gan", models.StatusVerified, 2},
	{models.ViolationOvertaking, "777-88-222", "https://picsum.photos/id/239/200/300", 32.0700, 34.7700, "South Tel Aviv", models.StatusPendingReview, 5},
	{models.ViolationRedLight, "123-45-678", "https://picsum.photos/id/240/200/300", 32.0855, 34.7820, "Dizengoff, Tel Aviv", models.StatusClosed, 10},
	{models.ViolationIllegalTurn, "999-00-111", "https://picsum.photos/id/241/200/300", 32.7940, 34.9896, "Haifa", models.StatusPendingReview, 1},
	{models.ViolationPublicLane, "321-65-987", "https://picsum.photos/id/242/200/300", 32.0790, 34.7900, "Begin Road, Tel Aviv", models.StatusRejected, 3},
}

func ensureUser(db *gorm.DB, email, password, first, last string, role models.Role) (models.User, error) {
	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return user, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user, err
	}
	user = models.User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := db.Create(&user).Error; err != nil {
		return user, err
	}
	log.WithFields(log.Fields{"email": email, "role": role}).Info("👤 created user")
	return user, nil
}

func main() {
	reset := flag.Bool("reset", false, "delete existing violations before seeding")
	flag.Parse()

	log.SetHandler(cli.New(os.Stderr))

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	// Connect to database
	if err := database.Connect(); err != nil {
		log.WithError(err).Fatal("❌ failed to connect to database")
	}
	defer database.Close()

	fmt.Println("🌱 Starting violation seed...")

	if _, err := ensureUser(database.DB, "admin@patrolvision.local", "admin123", "Admin", "User", models.RoleAdmin); err != nil {
		log.WithError(err).Fatal("failed to seed admin")
	}
	driver, err := ensureUser(database.DB, "driver@patrolvision.local", "driver123", "Demo", "Driver", models.RoleUser)
	if err != nil {
		log.WithError(err).Fatal("failed to seed driver")
	}
	log.Infof("👤 assigning violations to user: %s %s", driver.FirstName, driver.LastName)

	if *reset {
		if err := database.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Violation{}).Error; err != nil {
			log.WithError(err).Fatal("failed to clear violations")
		}
		fmt.Println("🗑️  Existing violations cleared")
	}

	now := time.Now()
	violations := make([]models.Violation, 0, len(sampleViolations))
	for _, s := range sampleViolations {
		violations = append(violations, models.Violation{
			UserID:        driver.ID,
			ViolationType: s.violationType,
			LicensePlate:  s.plate,
			MediaURL:      s.mediaURL,
			Location:      models.NewGeoPoint(s.lat, s.lng),
			Address:       s.address,
			Status:        s.status,
			Timestamp:     now.AddDate(0, 0, -s.daysAgo),
		})
	}

	if err := database.DB.Create(&violations).Error; err != nil {
		log.WithError(err).Fatal("failed to insert violations")
	}

	fmt.Printf("✅ Seeded %d violations\n", len(violations))
}
