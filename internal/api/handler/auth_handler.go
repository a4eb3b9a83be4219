package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// bindAndValidate decodes the body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}

func queryToken(c echo.Context) (string, error) {
	token := c.QueryParam("token")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	return token, nil
}

// Register creates a new user account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

// Login authenticates by username or email and returns an access token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json,x-www-form-urlencoded
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      201   {object}  loginResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, loginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		Message:     res.User.Username + ", Login successful",
	})
}

// SendVerification mails an email verification link to the caller.
//
// @Summary      Send verification email
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Param        username  path      string  true  "Caller's username"
// @Success      201       {object}  detailResponse
// @Failure      401       {object}  errorResponse
// @Failure      403       {object}  errorResponse
// @Failure      409       {object}  errorResponse
// @Failure      503       {object}  errorResponse
// @Router       /auth/send-verification-email/{username} [post]
func (h *AuthHandler) SendVerification(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	to, err := h.authService.SendVerification(c.Request().Context(), id, c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, detailResponse{Detail: "Verification email sent to " + to})
}

// Verify redeems an email verification token.
//
// @Summary      Verify email
// @Tags         auth
// @Produce      json
// @Param        token  query     string  true  "Verification token"
// @Success      200    {object}  verifyResponse
// @Failure      401    {object}  errorResponse
// @Failure      404    {object}  errorResponse
// @Router       /auth/verify [get]
func (h *AuthHandler) Verify(c echo.Context) error {
	token, err := queryToken(c)
	if err != nil {
		return err
	}

	user, err := h.authService.VerifyEmail(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, verifyResponse{Username: user.Username, Detail: "User verified successfully"})
}

// ForgotPassword mails a password reset link.
//
// @Summary      Request password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      201   {object}  detailResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	to, err := h.authService.ForgotPassword(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, detailResponse{Detail: "Forgot password email sent to " + to})
}

// ResetPassword redeems a reset token and sets a new password.
//
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token  query     string                   true  "Reset token"
// @Param        body   body      recoveryPasswordRequest  true  "New password"
// @Success      201    {object}  messageResponse
// @Failure      401    {object}  errorResponse
// @Failure      422    {object}  errorResponse
// @Router       /auth/forgot-password [put]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	token, err := queryToken(c)
	if err != nil {
		return err
	}
	var req recoveryPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.ResetPassword(c.Request().Context(), token, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, messageResponse{
		Message: user.Email + ", you have successfully changed your password.",
	})
}

// Logout revokes the presented access token.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	id, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	if err := h.authService.Logout(c.Request().Context(), id.Token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: id.Subject + ", you've successfully logged out."})
}
