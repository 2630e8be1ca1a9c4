package main

import (
	"html/template"
	"net/http"

	"bookworm/models"
	"bookworm/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Library Dashboard</title>
<style>
  body { font-family: sans-serif; margin: 2rem; color: #222; }
  h1 { margin-bottom: 0; }
  .sub { color: #777; margin-top: 0.2rem; }
  section { margin-top: 2rem; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #ddd; }
  th { background: #f5f5f5; }
  td.num { text-align: right; font-variant-numeric: tabular-nums; }
  form { display: flex; gap: 0.5rem; align-items: center; }
  input { padding: 0.3rem; width: 7rem; }
  button { padding: 0.3rem 0.8rem; }
  #rating-result { margin-left: 0.5rem; }
</style>
</head>
<body>
<h1>Library Dashboard</h1>
<p class="sub">{{.BookCount}} books &middot; {{.RatingCount}} ratings</p>

<section>
<h2>Most popular books</h2>
<table>
<tr><th>#</th><th>Title</th><th>Authors</th><th>Lang</th><th>Ratings</th><th>Mean</th><th>Score</th></tr>
{{range $i, $b := .TopBooks}}
<tr>
  <td class="num">{{inc $i}}</td>
  <td>{{$b.Title}}</td>
  <td>{{$b.Authors}}</td>
  <td>{{$b.LanguageCode}}</td>
  <td class="num">{{$b.NumRatings}}</td>
  <td class="num">{{printf "%.2f" $b.MeanRating}}</td>
  <td class="num">{{printf "%.2f" $b.Score}}</td>
</tr>
{{else}}
<tr><td colspan="7">Not enough ratings yet.</td></tr>
{{end}}
</table>
</section>

<section>
<h2>Recently published</h2>
<table>
<tr><th>Title</th><th>Authors</th><th>Year</th></tr>
{{range .RecentBooks}}
<tr>
  <td>{{.Title}}</td>
  <td>{{.Authors}}</td>
  <td class="num">{{if .OriginalPublicationYear}}{{.OriginalPublicationYear}}{{end}}</td>
</tr>
{{end}}
</table>
</section>

<section>
<h2>Rate a copy</h2>
<form id="rating-form">
  <input name="user_id" type="number" placeholder="user id" required>
  <input name="copy_id" type="number" placeholder="copy id" required>
  <input name="rating" type="number" min="1" max="5" placeholder="1-5" required>
  <button type="submit">Submit</button>
  <span id="rating-result"></span>
</form>
<script>
document.getElementById("rating-form").addEventListener("submit", async (e) => {
  e.preventDefault();
  const form = new FormData(e.target);
  const body = {
    user_id: Number(form.get("user_id")),
    copy_id: Number(form.get("copy_id")),
    rating: Number(form.get("rating")),
  };
  const out = document.getElementById("rating-result");
  const resp = await fetch("/ratings", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify(body),
  });
  const data = await resp.json();
  out.textContent = resp.ok ? "saved" : (data.error || "error");
});
</script>
</section>
</body>
</html>`

func setupDashboardRoutes(router *gin.Engine, db *gorm.DB, recommender *services.Recommender, log *zap.Logger) {
	tpl := template.Must(template.New("dashboard").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		Parse(dashboardTemplate))
	router.SetHTMLTemplate(tpl)

	router.GET("/dashboard", func(c *gin.Context) {
		top, err := recommender.TopGlobal(c.Request.Context(), 10, 50)
		if err != nil {
			c.String(http.StatusInternalServerError, "database error")
			return
		}

		var recent []models.Book
		if err := db.
			Order("COALESCE(original_publication_year, 0) DESC").
			Order("title ASC").
			Limit(10).
			Find(&recent).Error; err != nil {
			log.Error("Database query for dashboard books failed", zap.Error(err))
			c.String(http.StatusInternalServerError, "database error")
			return
		}

		var bookCount, ratingCount int64
		db.Model(&models.Book{}).Count(&bookCount)
		db.Model(&models.Rating{}).Count(&ratingCount)

		c.HTML(http.StatusOK, "dashboard", gin.H{
			"TopBooks":    top,
			"RecentBooks": recent,
			"BookCount":   bookCount,
			"RatingCount": ratingCount,
		})
	})
}
