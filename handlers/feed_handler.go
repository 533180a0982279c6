package handlers

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// UpgradeFeed lets only websocket upgrade requests through.
func UpgradeFeed(c *fiber.Ctx) error {
	if websocketcontrib.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(deps.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// authenticateFeed validates the first frame, which must be
// {"type":"auth","token":"<jwt>"} for an admin.
func authenticateFeed(msg authMessage) (uuid.UUID, error) {
	if msg.Type != "auth" {
		return uuid.Nil, errors.New("invalid or missing auth message")
	}
	claims, err := parseToken(msg.Token)
	if err != nil {
		return uuid.Nil, errors.New("invalid token")
	}
	if role, _ := claims["role"].(string); role != models.RoleAdmin {
		return uuid.Nil, errors.New("admin access required")
	}
	raw, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid user ID")
	}
	return userID, nil
}

// ServeAdminFeed streams domain events to an authenticated admin.
func ServeAdminFeed(c *websocketcontrib.Conn) {
	var msg authMessage
	if err := c.ReadJSON(&msg); err != nil {
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}
	userID, err := authenticateFeed(msg)
	if err != nil {
		logger.Log.WithError(err).Warn("admin feed auth failed")
		_ = c.WriteJSON(fiber.Map{"error": err.Error()})
		c.Close()
		return
	}

	if err := c.WriteJSON(fiber.Map{"type": "ready"}); err != nil {
		c.Close()
		return
	}
	client := &websocket.Client{UserID: userID, Conn: c}
	deps.Feed.Register(client)
	defer func() {
		deps.Feed.Unregister(client)
		c.Close()
	}()

	// The feed is one-way; reads only detect the client going away.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				logger.Log.WithError(err).WithField("user_id", userID).Debug("admin feed read error")
			}
			return
		}
	}
}
