package api

// statusPage はデバイスリーダーのオフセットを表示する簡易ページ
const statusPage = `<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>Scroll Offset Reader</title>
<style>
body { font-family: sans-serif; margin: 2em; }
#offset { font-size: 2em; font-variant-numeric: tabular-nums; }
</style>
</head>
<body>
<h1>Scroll Offset Reader</h1>
<p>サービス: <span id="status">-</span></p>
<p id="offset">-</p>
<script>
async function refresh() {
  try {
    const status = await fetch("/api/service/status").then(r => r.json());
    document.getElementById("status").textContent = status.status;
    const res = await fetch("/api/readers/device/offset");
    if (res.ok) {
      const o = await res.json();
      document.getElementById("offset").textContent = "dx: " + o.dx + ", dy: " + o.dy;
    } else {
      document.getElementById("offset").textContent = "-";
    }
  } catch (e) {
    document.getElementById("status").textContent = "unreachable";
  }
}
setInterval(refresh, 250);
refresh();
</script>
</body>
</html>
`
