package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Notifier mengirim notifikasi ke room WebSocket
type Notifier interface {
	Notify(room string, n *models.Notification)
	Announce(n *models.Notification)
}

type NotificationController struct {
	DB       *gorm.DB
	Notifier Notifier
}

func NewNotificationController(db *gorm.DB, notifier Notifier) *NotificationController {
	return &NotificationController{DB: db, Notifier: notifier}
}

type notificationRequest struct {
	UserID  string `json:"userId"`
	GuestID string `json:"guestId"`
	OrderID string `json:"orderId"`
	Title   string `json:"title"`
	Message string `json:"message" binding:"required"`
}

// GetMyNotifications -> notifikasi milik user + pengumuman
func (nc *NotificationController) GetMyNotifications(c *gin.Context) {
	owner := middlewares.CurrentIdentity(c).OwnerID()

	var notifs []models.Notification
	if err := nc.DB.Where("user_id = ? OR user_id IS NULL", owner).
		Order("created_at DESC").Limit(100).Find(&notifs).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications", notifs)
}

// CreateNotification -> notifikasi ke satu user atau guest
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	var body notificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if (body.UserID == "") == (body.GuestID == "") {
		utils.RespondError(c, http.StatusBadRequest, errors.New("exactly one of userId or guestId is required"))
		return
	}

	room := hub.UserRoom(body.UserID)
	recipient := body.UserID
	if body.GuestID != "" {
		room = hub.GuestRoom(body.GuestID)
		recipient = body.GuestID
	}

	notif := nc.build(body)
	notif.UserID = &recipient
	if err := nc.DB.Create(notif).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	nc.Notifier.Notify(room, notif)
	utils.InfoLogger.WithField("room", room).Infof("Notification created: %v", notif.Message)
	utils.RespondJSON(c, http.StatusCreated, "Notification created", notif)
}

// CreateAnnouncement -> dikirim ke semua koneksi
func (nc *NotificationController) CreateAnnouncement(c *gin.Context) {
	var body notificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	notif := nc.build(body)
	if err := nc.DB.Create(notif).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	nc.Notifier.Announce(notif)
	utils.InfoLogger.Printf("Announcement created: %v", notif.Message)
	utils.RespondJSON(c, http.StatusCreated, "Announcement created", notif)
}

func (nc *NotificationController) build(body notificationRequest) *models.Notification {
	notif := &models.Notification{
		ID:        uuid.NewString(),
		Title:     body.Title,
		Message:   body.Message,
		CreatedAt: time.Now(),
	}
	if body.OrderID != "" {
		orderID := body.OrderID
		notif.OrderID = &orderID
	}
	return notif
}
