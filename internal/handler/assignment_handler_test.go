package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/edu-homework-api/internal/config"
	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/handler"
	"github.com/noah-isme/edu-homework-api/internal/models"
	"github.com/noah-isme/edu-homework-api/internal/repository"
	"github.com/noah-isme/edu-homework-api/internal/router"
	"github.com/noah-isme/edu-homework-api/internal/service"
)

type testFileStorage struct{}

func (t *testFileStorage) Save(_ context.Context, name string, _ io.Reader) (string, error) {
	return "test/" + name, nil
}

func (t *testFileStorage) Delete(_ context.Context, _ string) error { return nil }

func (t *testFileStorage) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://example.com/" + key, nil
}

type assignmentTestEnv struct {
	app     *fiber.App
	teacher models.Teacher
	student models.Student
	class   models.Class
}

// testAuth stands in for the JWT middleware: the acting user comes from
// request headers instead of a signed token.
func testAuth(c *fiber.Ctx) error {
	if raw := c.Get("X-Test-User"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupAssignmentApp(t *testing.T) assignmentTestEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Teacher{}, &models.Class{}, &models.Student{}, &models.Enrollment{},
		&models.Assignment{}, &models.Submission{},
		&models.AssignmentGroup{}, &models.GroupMember{},
		&models.ScoreAuditLog{}, &models.ScoreAdjustment{},
	))

	teacher := models.Teacher{Name: "Prof. Lin", Email: "lin@example.com"}
	require.NoError(t, db.Create(&teacher).Error)
	class := models.Class{Name: "CS101", TeacherID: teacher.ID}
	require.NoError(t, db.Create(&class).Error)
	student := models.Student{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, db.Create(&student).Error)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: class.ID, StudentID: student.ID, JoinedAt: time.Now()}).Error)

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)
	store := &testFileStorage{}

	assignmentRepo := repository.NewAssignmentRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	assignmentService := service.NewAssignmentService(assignmentRepo, rosterRepo, store, validate, logger)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		AssignmentHandler: assignmentHandler,
		JWTMiddleware:     testAuth,
	})

	return assignmentTestEnv{app: app, teacher: teacher, student: student, class: class}
}

func createPayload(classID uint) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"class_id":    classID,
		"title":       "Data Structures",
		"description": "Implement heaps and binary search trees.",
		"start_time":  now.Add(time.Hour).Format(time.RFC3339),
		"deadline":    now.Add(72 * time.Hour).Format(time.RFC3339),
		"max_score":   100,
	}
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func actAs(req *http.Request, userID uint, role string) *http.Request {
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(userID), 10))
	req.Header.Set("X-Test-Role", role)
	return req
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func TestAssignmentHandlerCreateListAndGet(t *testing.T) {
	env := setupAssignmentApp(t)

	req := actAs(jsonRequest(t, "POST", "/api/v1/assignments", createPayload(env.class.ID)), env.teacher.ID, "teacher")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var createResp struct {
		Success bool                   `json:"success"`
		Data    dto.AssignmentResponse `json:"data"`
		Message string                 `json:"message"`
	}
	decodeResponse(t, resp, &createResp)
	require.True(t, createResp.Success)
	require.Equal(t, "assignment created", createResp.Message)
	require.NotZero(t, createResp.Data.ID)
	require.Equal(t, models.AssignmentStatusNotStarted, createResp.Data.Status)

	listTarget := fmt.Sprintf("/api/v1/assignments?class_id=%d", env.class.ID)
	listReq := actAs(httptest.NewRequest("GET", listTarget, nil), env.student.ID, "student")
	listResp, err := env.app.Test(listReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, listResp.StatusCode)

	var listBody struct {
		Success bool                     `json:"success"`
		Data    []dto.AssignmentResponse `json:"data"`
	}
	decodeResponse(t, listResp, &listBody)
	require.True(t, listBody.Success)
	require.Len(t, listBody.Data, 1)

	getTarget := fmt.Sprintf("/api/v1/assignments/%d", createResp.Data.ID)
	getReq := actAs(httptest.NewRequest("GET", getTarget, nil), env.student.ID, "student")
	getResp, err := env.app.Test(getReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, getResp.StatusCode)
}

func TestAssignmentHandlerListRequiresClassID(t *testing.T) {
	env := setupAssignmentApp(t)

	req := actAs(httptest.NewRequest("GET", "/api/v1/assignments", nil), env.student.ID, "student")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAssignmentHandlerRejectsStudentMutation(t *testing.T) {
	env := setupAssignmentApp(t)

	req := actAs(jsonRequest(t, "POST", "/api/v1/assignments", createPayload(env.class.ID)), env.student.ID, "student")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAssignmentHandlerRejectsInvertedWindow(t *testing.T) {
	env := setupAssignmentApp(t)

	payload := createPayload(env.class.ID)
	payload["start_time"], payload["deadline"] = payload["deadline"], payload["start_time"]

	req := actAs(jsonRequest(t, "POST", "/api/v1/assignments", payload), env.teacher.ID, "teacher")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAssignmentHandlerUpdateAndDelete(t *testing.T) {
	env := setupAssignmentApp(t)

	req := actAs(jsonRequest(t, "POST", "/api/v1/assignments", createPayload(env.class.ID)), env.teacher.ID, "teacher")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var createResp struct {
		Data dto.AssignmentResponse `json:"data"`
	}
	decodeResponse(t, resp, &createResp)

	target := fmt.Sprintf("/api/v1/assignments/%d", createResp.Data.ID)
	patch := map[string]interface{}{"title": "Data Structures II"}
	patchReq := actAs(jsonRequest(t, "PATCH", target, patch), env.teacher.ID, "teacher")
	patchResp, err := env.app.Test(patchReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, patchResp.StatusCode)

	var patchBody struct {
		Data dto.AssignmentResponse `json:"data"`
	}
	decodeResponse(t, patchResp, &patchBody)
	require.Equal(t, "Data Structures II", patchBody.Data.Title)

	deleteReq := actAs(httptest.NewRequest("DELETE", target, nil), env.teacher.ID, "teacher")
	deleteResp, err := env.app.Test(deleteReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, deleteResp.StatusCode)

	getReq := actAs(httptest.NewRequest("GET", target, nil), env.teacher.ID, "teacher")
	getResp, err := env.app.Test(getReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, getResp.StatusCode)
}
